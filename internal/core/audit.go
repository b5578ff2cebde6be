package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionPackageAdd         AuditAction = "package_add"
	ActionPackageEdit        AuditAction = "package_edit"
	ActionPackageMove        AuditAction = "package_move"
	ActionPackageDelete      AuditAction = "package_delete"
	ActionSubscriptionAdd    AuditAction = "subscription_add"
	ActionSubscriptionEdit   AuditAction = "subscription_edit"
	ActionSubscriptionDelete AuditAction = "subscription_delete"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// Column limits of the admin log table.
const (
	maxActorLen     = 64
	maxIPLen        = 45
	maxUserAgentLen = 255
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID        uuid.UUID     `json:"id" db:"log_id"`
	Action    AuditAction   `json:"action" db:"log_action"`
	Severity  AuditSeverity `json:"severity" db:"log_severity"`
	SubjectID int           `json:"subjectId" db:"log_subject_id"`
	Actor     string        `json:"actor,omitempty" db:"log_actor"`
	IPAddress string        `json:"ipAddress,omitempty" db:"log_ip"`
	UserAgent string        `json:"userAgent,omitempty" db:"log_user_agent"`
	Detail    string        `json:"detail,omitempty" db:"log_detail"`
	CreatedAt time.Time     `json:"createdAt" db:"log_time"`
}

// AuditParams describes one admin action. Request metadata is taken from
// the context.
type AuditParams struct {
	Action    AuditAction
	SubjectID int // package or subscription ID
	Detail    string
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	Action AuditAction
	Limit  int
	Offset int
}

// DefaultAuditLimit caps listings when no limit is given.
const DefaultAuditLimit = 100

// AuditDB is the part of a pgx pool the audit log needs.
type AuditDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionPackageDelete:
		return SeverityHigh
	case ActionSubscriptionDelete:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AuditLog records admin actions in the admin log table.
type AuditLog struct {
	db     AuditDB
	table  string
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLog creates an audit log writing to table.
func NewAuditLog(db AuditDB, table string, logger *slog.Logger) *AuditLog {
	return &AuditLog{
		db:     db,
		table:  table,
		logger: logger.With("component", "audit"),
		now:    time.Now,
	}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Log records an admin action. Failures are logged and reported as nil so
// that a broken audit table never blocks the action itself.
func (a *AuditLog) Log(ctx context.Context, p AuditParams) *AuditEntry {
	meta := RequestMetaFromContext(ctx)
	entry := &AuditEntry{
		ID:        uuid.New(),
		Action:    p.Action,
		Severity:  determineSeverity(p.Action),
		SubjectID: p.SubjectID,
		Actor:     truncate(meta.Actor, maxActorLen),
		IPAddress: truncate(meta.IPAddress, maxIPLen),
		UserAgent: truncate(meta.UserAgent, maxUserAgentLen),
		Detail:    p.Detail,
		CreatedAt: a.now().UTC(),
	}

	query, args, err := psql.Insert(a.table).
		Columns("log_id", "log_action", "log_severity", "log_subject_id", "log_actor",
			"log_ip", "log_user_agent", "log_detail", "log_time").
		Values(entry.ID, string(entry.Action), string(entry.Severity), entry.SubjectID, entry.Actor,
			entry.IPAddress, entry.UserAgent, entry.Detail, entry.CreatedAt).
		ToSql()
	if err == nil {
		_, err = a.db.Exec(ctx, query, args...)
	}
	if err != nil {
		a.logger.Error("audit write failed",
			"action", p.Action,
			"subject_id", p.SubjectID,
			"error", err,
		)
		return nil
	}

	a.logger.Debug("audit entry written", "action", p.Action, "severity", entry.Severity, "id", entry.ID)
	return entry
}

// List returns audit entries, newest first.
func (a *AuditLog) List(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultAuditLimit
	}

	q := psql.Select("log_id", "log_action", "log_severity", "log_subject_id", "log_actor",
		"log_ip", "log_user_agent", "log_detail", "log_time").
		From(a.table).
		OrderBy("log_time DESC").
		Limit(uint64(f.Limit))
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	if f.Action != "" {
		q = q.Where(sq.Eq{"log_action": string(f.Action)})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}
	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[AuditEntry])
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
