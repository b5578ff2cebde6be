package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// maxBodySize caps admin request bodies.
const maxBodySize = 1 << 20

// AdminController is one admin page: a listing plus add, edit and delete
// actions on a single record.
type AdminController interface {
	// Display lists the records.
	Display(w http.ResponseWriter, r *http.Request)
	// Add creates a record from the request body.
	Add(w http.ResponseWriter, r *http.Request)
	// Edit shows the record on GET and updates it on PUT.
	Edit(w http.ResponseWriter, r *http.Request, id int)
	// Delete removes the record.
	Delete(w http.ResponseWriter, r *http.Request, id int)
}

// mountAdmin routes a controller's actions:
//
//	GET    /      Display
//	POST   /      Add
//	GET    /{id}  Edit
//	PUT    /{id}  Edit
//	DELETE /{id}  Delete
func mountAdmin(r chi.Router, s *Server, c AdminController) {
	r.Get("/", c.Display)
	r.Post("/", c.Add)
	r.Get("/{id}", withID(s, c.Edit))
	r.Put("/{id}", withID(s, c.Edit))
	r.Delete("/{id}", withID(s, c.Delete))
}

// withID parses the {id} URL parameter before calling fn.
func withID(s *Server, fn func(http.ResponseWriter, *http.Request, int)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(chi.URLParam(r, "id"))
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		fn(w, r, id)
	}
}

// parseID parses a positive record ID.
func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: %q", errInvalidID, raw)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, defaultVal int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", errInvalidBody, name, raw)
	}
	return v, nil
}

// isForm reports whether the request body is an HTML form post.
func isForm(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "multipart/form-data")
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: empty body", errInvalidBody)
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

// parseForm parses a form body within the size limit.
func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := r.ParseMultipartForm(maxBodySize); err != nil && err != http.ErrNotMultipart {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

// formInts parses every value of a repeated form field.
func formInts(r *http.Request, name string) ([]int, error) {
	values := r.PostForm[name]
	out := make([]int, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", errInvalidBody, name, v)
		}
		out = append(out, n)
	}
	return out, nil
}

// formInt parses an optional single form field.
func formInt(r *http.Request, name string) (int, bool, error) {
	v := strings.TrimSpace(r.PostForm.Get(name))
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s=%q", errInvalidBody, name, v)
	}
	return n, true, nil
}

// formBool reads a checkbox-style form field.
func formBool(r *http.Request, name string) (bool, bool) {
	v, ok := r.PostForm[name]
	if !ok || len(v) == 0 {
		return false, false
	}
	b, err := strconv.ParseBool(v[0])
	if err != nil {
		// Checkboxes post "on".
		return v[0] == "on", true
	}
	return b, true
}
