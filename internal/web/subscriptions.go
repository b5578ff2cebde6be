package web

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/groupsub/internal/core"
	"github.com/JonMunkholm/groupsub/internal/entity"
	"github.com/JonMunkholm/groupsub/internal/operator"
	"github.com/JonMunkholm/groupsub/internal/web/templates"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// SubscriptionsController manages user subscriptions.
type SubscriptionsController struct {
	s *Server
}

// subscriptionRequest is the body of add and edit. When Term is set the
// expiry is the start plus the term's length and Expires is ignored.
type subscriptionRequest struct {
	User    int    `json:"user"`
	Package int    `json:"package"`
	Term    int    `json:"term"`
	Start   *int64 `json:"start"`
	Expires *int64 `json:"expires"`
	Active  *bool  `json:"active"`
}

type subscriptionList struct {
	Subscriptions []operator.SubscriptionDetail `json:"subscriptions"`
	Total         int                           `json:"total"`
	Limit         int                           `json:"limit"`
	Offset        int                           `json:"offset"`
	Packages      map[int]string                `json:"packages"`
}

// Display lists subscriptions, newest first. Supports ?package=, ?user=,
// ?active=, ?limit= and ?offset=.
func (c *SubscriptionsController) Display(w http.ResponseWriter, r *http.Request) {
	f, err := subscriptionFilter(r)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}

	list, err := c.s.deps.Subscriptions.GetSubscriptions(r.Context(), f)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}
	total, err := c.s.deps.Subscriptions.CountSubscriptions(r.Context(), f)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}
	// Package names for the filter and add form.
	packages, err := c.s.deps.Packages.GetPackageList(r.Context())
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}

	page := subscriptionList{Subscriptions: list, Total: total, Limit: f.Limit, Offset: f.Offset, Packages: packages}
	c.s.render(w, r, http.StatusOK, page, templates.SubscriptionsPage(templates.SubscriptionsParams{
		Subscriptions: list,
		Total:         total,
		Packages:      packages,
		Selected:      f.PackageID,
	}))
}

// Add creates a subscription and grants its groups when active.
func (c *SubscriptionsController) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := readSubscriptionRequest(w, r)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}

	sub := c.s.deps.Factory.NewSubscription()
	if err := c.apply(ctx, sub, req, req.Package); err != nil {
		c.s.respondError(w, r, err)
		return
	}

	id, err := c.s.deps.Subscriptions.AddSubscription(ctx, sub)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}
	if err := sub.SetID(id); err != nil {
		c.s.respondError(w, r, err)
		return
	}

	c.s.deps.Audit.Log(ctx, core.AuditParams{
		Action:    core.ActionSubscriptionAdd,
		SubjectID: id,
		Detail:    fmt.Sprintf("user=%d package=%d expires=%d", sub.User(), sub.Package(), sub.Expires()),
	})

	if isForm(r) {
		http.Redirect(w, r, "/acp/subscriptions", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Edit returns the subscription on GET. On PUT it changes the start, expiry
// or active flag, granting or revoking groups when the flag flips.
func (c *SubscriptionsController) Edit(w http.ResponseWriter, r *http.Request, id int) {
	ctx := r.Context()

	sub, err := c.s.deps.Subscriptions.GetSubscription(ctx, id)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}
	if r.Method == http.MethodGet {
		c.s.render(w, r, http.StatusOK, sub, templates.SubscriptionView(sub))
		return
	}

	req, err := readSubscriptionRequest(w, r)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}
	if req.Package != 0 && req.Package != sub.Package() {
		c.s.respondError(w, r, &entity.UnexpectedValueError{
			Field:  "package",
			Value:  strconv.Itoa(req.Package),
			Reason: "a subscription cannot change package",
		})
		return
	}
	if err := c.apply(ctx, sub, req, sub.Package()); err != nil {
		c.s.respondError(w, r, err)
		return
	}

	if err := c.s.deps.Subscriptions.UpdateSubscription(ctx, sub); err != nil {
		c.s.respondError(w, r, err)
		return
	}

	c.s.deps.Audit.Log(ctx, core.AuditParams{
		Action:    core.ActionSubscriptionEdit,
		SubjectID: sub.ID(),
		Detail:    fmt.Sprintf("expires=%d active=%t", sub.Expires(), sub.Active()),
	})

	if isForm(r) {
		http.Redirect(w, r, "/acp/subscriptions", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Delete removes the subscription and revokes the groups it granted.
func (c *SubscriptionsController) Delete(w http.ResponseWriter, r *http.Request, id int) {
	ctx := r.Context()

	deleted, err := c.s.deps.Subscriptions.DeleteSubscription(ctx, id)
	if err != nil {
		c.s.respondError(w, r, err)
		return
	}
	if !deleted {
		c.s.respondError(w, r, operator.ErrSubscriptionNotFound)
		return
	}

	c.s.deps.Audit.Log(ctx, core.AuditParams{
		Action:    core.ActionSubscriptionDelete,
		SubjectID: id,
	})
	w.WriteHeader(http.StatusNoContent)
}

// apply copies req onto sub. pkgID is the package the subscription belongs
// to; a term must belong to the same package.
func (c *SubscriptionsController) apply(ctx context.Context, sub *entity.Subscription, req *subscriptionRequest, pkgID int) error {
	if sub.ID() == 0 {
		if err := sub.SetUser(req.User); err != nil {
			return err
		}
	}

	length := 0
	if req.Term != 0 {
		pt, ok, err := c.s.deps.Packages.GetPackageTerm(ctx, req.Term)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %d", errTermNotFound, req.Term)
		}
		if pkgID == 0 {
			pkgID = pt.Package.ID()
		}
		if pkgID != pt.Package.ID() {
			return &entity.UnexpectedValueError{
				Field:  "term",
				Value:  strconv.Itoa(req.Term),
				Reason: "term belongs to another package",
			}
		}
		length = pt.Term.Length()
	}

	if sub.ID() == 0 {
		if err := sub.SetPackage(pkgID); err != nil {
			return err
		}
		if req.Term == 0 {
			if _, err := c.s.deps.Packages.GetPackage(ctx, pkgID); err != nil {
				return err
			}
		}
	}

	// Clear the expiry first so a later start is not rejected against the
	// old one; it is restored or replaced below.
	expires := sub.Expires()
	if req.Expires != nil {
		expires = *req.Expires
	}
	if err := sub.SetExpires(0); err != nil {
		return err
	}
	if req.Start != nil {
		if err := sub.SetStart(*req.Start); err != nil {
			return err
		}
	}
	if length > 0 {
		if err := sub.ExtendDays(length); err != nil {
			return err
		}
	} else if err := sub.SetExpires(expires); err != nil {
		return err
	}

	if req.Active != nil {
		sub.SetActive(*req.Active)
	}
	return sub.Validate()
}

// subscriptionFilter parses the listing query parameters.
func subscriptionFilter(r *http.Request) (operator.SubscriptionFilter, error) {
	var f operator.SubscriptionFilter
	var err error

	if f.PackageID, err = queryInt(r, "package", 0); err != nil {
		return f, err
	}
	if f.UserID, err = queryInt(r, "user", 0); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit", defaultPageSize); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(r, "offset", 0); err != nil {
		return f, err
	}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("%w: active=%q", errInvalidBody, raw)
		}
		f.Active = &active
	}

	f.Limit = min(max(f.Limit, 1), maxPageSize)
	f.Offset = max(f.Offset, 0)
	return f, nil
}

// readSubscriptionRequest decodes a JSON or form body. On forms a missing
// active field means the checkbox was left unchecked.
func readSubscriptionRequest(w http.ResponseWriter, r *http.Request) (*subscriptionRequest, error) {
	req := &subscriptionRequest{}
	if !isForm(r) {
		if err := decodeJSON(w, r, req); err != nil {
			return nil, err
		}
		return req, nil
	}

	if err := parseForm(w, r); err != nil {
		return nil, err
	}
	var err error
	if req.User, _, err = formInt(r, "user"); err != nil {
		return nil, err
	}
	if req.Package, _, err = formInt(r, "package"); err != nil {
		return nil, err
	}
	if req.Term, _, err = formInt(r, "term"); err != nil {
		return nil, err
	}
	for name, dst := range map[string]**int64{"start": &req.Start, "expires": &req.Expires} {
		v, ok, err := formInt(r, name)
		if err != nil {
			return nil, err
		}
		if ok {
			n := int64(v)
			*dst = &n
		}
	}
	// An unchecked checkbox is not posted at all.
	active, _ := formBool(r, "active")
	req.Active = &active
	return req, nil
}
