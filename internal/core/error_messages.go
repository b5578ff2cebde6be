package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Admins can quote the code to whoever runs the forum database.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A package with this identifier already exists
//	        Patterns: "duplicate key"
//	DB002 - Unique constraint: This value must be unique but already exists
//	        Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key: Referenced record does not exist
//	        Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused: Unable to connect to database
//	DB005 - Connection reset: Database connection was interrupted
//	DB006 - Timeout: Operation timed out
//	DB007 - Deadlock: Database was busy with conflicting operations
//	DB008 - Serialization: A concurrent change conflicted with this one
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Out of bounds: A number is outside its allowed range
//	         Patterns: "out of bounds"
//	VAL002 - Unexpected value: A value has an unexpected format
//	         Patterns: "unexpected value"
//	VAL003 - Unknown group: A selected group does not exist
//	         Patterns: "unknown group"
//	VAL004 - Bad request body: The submitted data could not be read
//	         Patterns: "invalid request body"
//	VAL005 - Bad identifier: The ID in the address is not a number
//	         Patterns: "invalid id"
//
// # Package Errors (PKG001-PKG099)
//
//	PKG001 - Package not found
//	PKG002 - Term not found
//
// # Subscription Errors (SUB001-SUB099)
//
//	SUB001 - Subscription not found
//
// # Authentication Errors (AUTH001-AUTH099)
//
//	AUTH001 - Missing credentials
//	AUTH002 - Invalid credentials
//	AUTH003 - Not an administrator
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled: "context canceled"
//	REQ002 - Request timeout: "context deadline exceeded"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check the logs for the
// technical error, which is logged with the request ID.
//
// # Pattern Matching
//
// Patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns come first.

import "strings"

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// Order matters: the first match wins.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Constraint Errors (DB001-DB003)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A package with this identifier already exists",
			Action:  "Choose a different identifier",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for an existing entry with the same value",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Check for an existing entry with the same value",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Reload the page and try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Reload the page and try again",
			Code:    "DB003",
		},
	},

	// =========================================================================
	// Request Errors (REQ001-REQ002)
	// Checked before "timeout" so a cancelled request is not reported as a
	// database problem.
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again",
			Code:    "REQ002",
		},
	},

	// =========================================================================
	// Database Connection Errors (DB004-DB008)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "could not serialize",
		msg: UserMessage{
			Message: "A concurrent change conflicted with this one",
			Action:  "Reload the page and try again",
			Code:    "DB008",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL005)
	// =========================================================================
	{
		pattern: "out of bounds",
		msg: UserMessage{
			Message: "A number is outside its allowed range",
			Action:  "Check prices, lengths and IDs",
			Code:    "VAL001",
		},
	},
	{
		pattern: "unexpected value",
		msg: UserMessage{
			Message: "A value has an unexpected format",
			Action:  "Check the identifier, name and currency fields",
			Code:    "VAL002",
		},
	},
	{
		pattern: "unknown group",
		msg: UserMessage{
			Message: "A selected group does not exist",
			Action:  "Reload the page to refresh the group list",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The submitted data could not be read",
			Action:  "Send a valid JSON or form body",
			Code:    "VAL004",
		},
	},
	{
		pattern: "invalid id",
		msg: UserMessage{
			Message: "The ID in the address is not valid",
			Action:  "Use a positive whole number",
			Code:    "VAL005",
		},
	},

	// =========================================================================
	// Not Found Errors (PKG, SUB)
	// =========================================================================
	{
		pattern: "package not found",
		msg: UserMessage{
			Message: "Package not found",
			Action:  "It may have been deleted. Reload the package list",
			Code:    "PKG001",
		},
	},
	{
		pattern: "term not found",
		msg: UserMessage{
			Message: "Term not found",
			Action:  "It may have been replaced. Reload the package",
			Code:    "PKG002",
		},
	},
	{
		pattern: "subscription not found",
		msg: UserMessage{
			Message: "Subscription not found",
			Action:  "It may have been deleted. Reload the subscription list",
			Code:    "SUB001",
		},
	},

	// =========================================================================
	// Authentication Errors (AUTH001-AUTH003)
	// =========================================================================
	{
		pattern: "missing credentials",
		msg: UserMessage{
			Message: "Authentication required",
			Action:  "Send an API key or bearer token",
			Code:    "AUTH001",
		},
	},
	{
		pattern: "invalid credentials",
		msg: UserMessage{
			Message: "Invalid API key or token",
			Action:  "Check your credentials",
			Code:    "AUTH002",
		},
	},
	{
		pattern: "not an administrator",
		msg: UserMessage{
			Message: "Administrator access required",
			Action:  "Use an admin token",
			Code:    "AUTH003",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If no pattern matches, a generic fallback with code ERR000 is returned.
//
// Example:
//
//	err := fmt.Errorf("term 0: %w", &entity.OutOfBoundsError{Field: "length"})
//	msg := MapError(err)
//	// msg.Code == "VAL001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// UserError pairs a technical error with its user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
