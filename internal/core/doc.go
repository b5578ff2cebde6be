// Package core holds the cross-cutting pieces of the admin service that sit
// between the operators and the HTTP layer.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DB001-DB008: Database errors (duplicates, constraints, connections)
//   - VAL001-VAL005: Validation errors (entity bounds, formats, unknown groups)
//   - PKG001-PKG002, SUB001: Missing packages, terms and subscriptions
//   - AUTH001-AUTH003: Authentication failures
//   - REQ001-REQ002: Cancelled or timed out requests
//
// # Audit Logging
//
// Admin mutations are recorded by [AuditLog] with severity levels:
//
//   - Low: Adding, editing and moving packages; adding and editing subscriptions
//   - Medium: Subscription deletes
//   - High: Package deletes
//
// Request metadata (IP address, user agent, actor) travels in the context
// via [WithRequestMeta] and [WithActor].
//
// # Background Jobs
//
// [StartExpiryScheduler] deactivates expired subscriptions on an interval.
package core
