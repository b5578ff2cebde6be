package database

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no migrations embedded")
	}

	for _, name := range files {
		data, err := fs.ReadFile(migrations, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		body := string(data)
		if !strings.Contains(body, "-- +goose Up") || !strings.Contains(body, "-- +goose Down") {
			t.Errorf("%s: missing goose annotations", name)
		}
		if strings.Contains(body, "phpbb_") {
			t.Errorf("%s: hard-coded table prefix", name)
		}
	}
}

func TestNewTables(t *testing.T) {
	tbl := NewTables("forum_")

	tests := []struct {
		got, want string
	}{
		{tbl.Packages, "forum_groupsub_packages"},
		{tbl.Terms, "forum_groupsub_terms"},
		{tbl.PackageGroups, "forum_groupsub_groups"},
		{tbl.Subscriptions, "forum_groupsub_subs"},
		{tbl.AdminLog, "forum_groupsub_admin_log"},
		{tbl.Groups, "forum_groups"},
		{tbl.Users, "forum_users"},
		{tbl.UserGroup, "forum_user_group"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
