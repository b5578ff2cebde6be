// Package database holds table naming and the embedded schema migrations.
package database

// Tables holds the prefixed names of every table the service touches.
type Tables struct {
	Packages      string
	Terms         string
	PackageGroups string
	Subscriptions string
	AdminLog      string

	// Forum tables, owned by the forum itself.
	Groups    string
	Users     string
	UserGroup string
}

// NewTables builds table names for a forum installed with prefix.
func NewTables(prefix string) Tables {
	return Tables{
		Packages:      prefix + "groupsub_packages",
		Terms:         prefix + "groupsub_terms",
		PackageGroups: prefix + "groupsub_groups",
		Subscriptions: prefix + "groupsub_subs",
		AdminLog:      prefix + "groupsub_admin_log",
		Groups:        prefix + "groups",
		Users:         prefix + "users",
		UserGroup:     prefix + "user_group",
	}
}
