package web

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/groupsub/internal/core"
	"github.com/JonMunkholm/groupsub/internal/entity"
	"github.com/JonMunkholm/groupsub/internal/operator"
	"github.com/JonMunkholm/groupsub/internal/web/templates"
)

// PackagesController manages subscription packages with their terms and groups.
type PackagesController struct {
	s *Server
}

type packageRequest struct {
	Ident       string        `json:"ident"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Enabled     *bool         `json:"enabled"`
	Terms       []termRequest `json:"terms"`
	Groups      []int         `json:"groups"`
}

type termRequest struct {
	Price    int    `json:"price"`
	Currency string `json:"currency"`
	Length   int    `json:"length"`
}

// packageList is the JSON shape of the package listing.
type packageList struct {
	Packages []operator.PackageDetail `json:"packages"`
	Total    int                      `json:"total"`
}

// Display lists all packages in sort order, optionally filtered by ?ident=.
func (c *PackagesController) Display(w http.ResponseWriter, r *http.Request) {
	details, err := c.s.deps.Packages.GetPackages(r.Context(), r.URL.Query().Get("ident"))
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}
	c.s.render(w, r, http.StatusOK, packageList{Packages: details, Total: len(details)}, templates.PackagesPage(details))
}

// Add creates a package with its terms and groups.
func (c *PackagesController) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := readPackageRequest(w, r)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}

	pkg := c.s.deps.Factory.NewPackage()
	terms, err := c.prepare(ctx, pkg, req)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}

	created, err := c.s.deps.Packages.SavePackage(ctx, pkg, terms, req.Groups)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}

	c.s.deps.Audit.Log(ctx, core.AuditParams{
		Action:    core.ActionPackageAdd,
		SubjectID: created.ID(),
		Detail:    fmt.Sprintf("ident=%s terms=%d groups=%d", created.Ident(), len(terms), len(req.Groups)),
	})

	if isForm(r) {
		http.Redirect(w, r, "/acp/packages", http.StatusSeeOther)
		return
	}
	detail, err := c.load(ctx, created)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

// Edit returns the package on GET. On PUT it updates the package and
// replaces its terms and groups.
func (c *PackagesController) Edit(w http.ResponseWriter, r *http.Request, id int) {
	ctx := r.Context()

	pkg, err := c.s.deps.Packages.GetPackage(ctx, id)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}

	if r.Method == http.MethodGet {
		detail, err := c.load(ctx, pkg)
		if err != nil {
			c.s.respondError(w, r, err)
			return
		}
		c.s.render(w, r, http.StatusOK, detail, templates.PackagesPage([]operator.PackageDetail{detail}))
		return
	}

	req, err := readPackageRequest(w, r)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}
	terms, err := c.prepare(ctx, pkg, req)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}

	if _, err := c.s.deps.Packages.SavePackage(ctx, pkg, terms, req.Groups); err != nil {
		c.s.respondError(w, r, err)
		return
	}

	c.s.deps.Audit.Log(ctx, core.AuditParams{
		Action:    core.ActionPackageEdit,
		SubjectID: pkg.ID(),
		Detail:    fmt.Sprintf("ident=%s terms=%d groups=%d", pkg.Ident(), len(terms), len(req.Groups)),
	})

	if isForm(r) {
		http.Redirect(w, r, "/acp/packages", http.StatusSeeOther)
		return
	}
	detail, err := c.load(ctx, pkg)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Delete removes the package, its terms, its groups and its subscriptions.
func (c *PackagesController) Delete(w http.ResponseWriter, r *http.Request, id int) {
	ctx := r.Context()

	deleted, err := c.s.deps.Packages.DeletePackage(ctx, id)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}
	if !deleted {
		c.s.respondError(w, r, operator.ErrPackageNotFound)
		return
	}

	c.s.deps.Audit.Log(ctx, core.AuditParams{
		Action:    core.ActionPackageDelete,
		SubjectID: id,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Move shifts the package by ?offset= positions in the sort order.
// Negative offsets move it up.
func (c *PackagesController) Move(w http.ResponseWriter, r *http.Request, id int) {
	ctx := r.Context()

	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}
	if err := c.s.deps.Packages.MovePackage(ctx, id, offset); err != nil {
		c.s.respondError(w, r, err)
		return
	}

	c.s.deps.Audit.Log(ctx, core.AuditParams{
		Action:    core.ActionPackageMove,
		SubjectID: id,
		Detail:    fmt.Sprintf("offset=%d", offset),
	})

	if isForm(r) {
		http.Redirect(w, r, "/acp/packages", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// prepare applies req to pkg and builds the terms, validating everything
// (including the group IDs) before anything is written.
func (c *PackagesController) prepare(ctx context.Context, pkg *entity.Package, req *packageRequest) ([]*entity.Term, error) {
	if err := entity.Set(
		func() error { return pkg.SetIdent(req.Ident) },
		func() error { return pkg.SetName(req.Name) },
	); err != nil {
		return nil, err
	}
	pkg.SetDescription(req.Description)
	if req.Enabled != nil {
		pkg.SetEnabled(*req.Enabled)
	}
	if err := pkg.Validate(); err != nil {
		return nil, err
	}

	terms := make([]*entity.Term, 0, len(req.Terms))
	for i, tr := range req.Terms {
		term := c.s.deps.Factory.NewTerm()
		err := entity.Set(
			func() error { return term.SetPrice(tr.Price) },
			func() error {
				if tr.Currency == "" {
					return nil
				}
				return term.SetCurrency(tr.Currency)
			},
			func() error { return term.SetLength(tr.Length) },
			term.Validate,
		)
		if err != nil {
			return nil, fmt.Errorf("term %d: %w", i, err)
		}
		terms = append(terms, term)
	}

	if len(req.Groups) > 0 {
		missing, ok, err := c.s.deps.Groups.Exists(ctx, req.Groups)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %d", errUnknownGroup, missing)
		}
	}
	return terms, nil
}

// load returns the package with its terms and named groups.
func (c *PackagesController) load(ctx context.Context, pkg *entity.Package) (operator.PackageDetail, error) {
	details, err := c.s.deps.Packages.GetPackages(ctx, pkg.Ident())
	if err != nil {
		return operator.PackageDetail{}, err
	}
	for _, d := range details {
		if d.Package.ID() == pkg.ID() {
			return d, nil
		}
	}
	return operator.PackageDetail{}, fmt.Errorf("%w: %d", operator.ErrPackageNotFound, pkg.ID())
}

// readPackageRequest decodes a JSON or form body. Forms post terms as
// parallel term_price, term_currency and term_length fields.
func readPackageRequest(w http.ResponseWriter, r *http.Request) (*packageRequest, error) {
	req := &packageRequest{}
	if !isForm(r) {
		if err := decodeJSON(w, r, req); err != nil {
			return nil, err
		}
		return req, nil
	}

	if err := parseForm(w, r); err != nil {
		return nil, err
	}
	req.Ident = strings.TrimSpace(r.PostForm.Get("ident"))
	req.Name = strings.TrimSpace(r.PostForm.Get("name"))
	req.Description = r.PostForm.Get("description")
	enabled, _ := formBool(r, "enabled")
	req.Enabled = &enabled

	groups, err := formInts(r, "groups")
	if err != nil {
		return nil, err
	}
	req.Groups = groups

	terms, err := formTerms(r)
	if err != nil {
		return nil, err
	}
	req.Terms = terms
	return req, nil
}

// formTerms reads the term rows of a package form. Row i is made of the i-th
// term_price, term_currency and term_length values. Rows with neither a price
// nor a length are skipped; a row with only one of them is rejected.
func formTerms(r *http.Request) ([]termRequest, error) {
	prices := r.PostForm["term_price"]
	currencies := r.PostForm["term_currency"]
	lengths := r.PostForm["term_length"]
	if len(prices) != len(lengths) {
		return nil, fmt.Errorf("%w: %d prices for %d lengths", errInvalidBody, len(prices), len(lengths))
	}

	var terms []termRequest
	for i := range prices {
		price := strings.TrimSpace(prices[i])
		length := strings.TrimSpace(lengths[i])
		if price == "" && length == "" {
			continue
		}
		if price == "" || length == "" {
			return nil, fmt.Errorf("%w: term row %d is incomplete", errInvalidBody, i)
		}

		tr := termRequest{}
		var err error
		if tr.Price, err = strconv.Atoi(price); err != nil {
			return nil, fmt.Errorf("%w: term_price=%q", errInvalidBody, price)
		}
		if tr.Length, err = strconv.Atoi(length); err != nil {
			return nil, fmt.Errorf("%w: term_length=%q", errInvalidBody, length)
		}
		if i < len(currencies) {
			tr.Currency = strings.TrimSpace(currencies[i])
		}
		terms = append(terms, tr)
	}
	return terms, nil
}
