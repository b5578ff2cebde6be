// Package templates holds the templ components of the admin pages.
package templates

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/groupsub/internal/entity"
	"github.com/JonMunkholm/groupsub/internal/operator"
)

// SubscriptionsParams is the data of the subscription listing.
type SubscriptionsParams struct {
	Subscriptions []operator.SubscriptionDetail
	Total         int
	Packages      map[int]string // package filter options
	Selected      int            // filtered package, 0 for all
}

type packageOption struct {
	ID   int
	Name string
}

// packageOptions orders the filter options by name.
func packageOptions(packages map[int]string) []packageOption {
	out := make([]packageOption, 0, len(packages))
	for id, name := range packages {
		out = append(out, packageOption{ID: id, Name: name})
	}
	slices.SortFunc(out, func(a, b packageOption) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func termsSummary(terms []*entity.Term) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, fmt.Sprintf("%d %s / %d days", t.Price(), t.Currency(), t.Length()))
	}
	return strings.Join(parts, ", ")
}

func groupNames(groups []operator.GroupRef) string {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	return strings.Join(names, ", ")
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "never"
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04")
}

func orID(name string, id int) string {
	if name != "" {
		return name
	}
	return "#" + strconv.Itoa(id)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
