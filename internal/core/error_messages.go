package core

// # Error Codes Reference
//
// This file maps technical errors to user-friendly messages with codes for
// support reference. Users quote the code when they report a problem.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A record with this value already exists
//	        Patterns: "duplicate key", "unique constraint conflict"
//
//	DB002 - Unique constraint: This value must be unique but already exists
//	        Patterns: "violates unique"
//
//	DB003 - Foreign key: Referenced record does not exist
//	        Patterns: "violates foreign key"
//
//	DB004 - Connection refused: Unable to connect to database
//	DB005 - Connection reset: Database connection was interrupted
//	DB006 - Timeout: Operation timed out
//	DB007 - Deadlock: Database was busy with conflicting operations
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the upload size limit
//	FILE002 - Wrong type: Only .txt files are accepted
//	FILE003 - Encoding error: File contains invalid characters
//	FILE004 - No file: No file was selected
//	FILE005 - Empty file: The uploaded file is empty
//
// # Bulk Load Errors (BLK001-BLK099)
//
//	BLK001 - Read failure: The document could not be read to the end
//	BLK002 - System busy: Too many bulk loads in progress
//	BLK003 - Cancelled: The bulk load was cancelled or timed out
//
// # Authorization Errors (AUTH001-AUTH099)
//
//	AUTH001 - Not signed in
//	AUTH002 - Wrong role for this page
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches. Check the application log for the
// technical error, keyed by request id.
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns come before general ones.

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFileType is returned when an upload is not a .txt document.
var ErrFileType = errors.New("invalid file type: only .txt files are accepted")

// Sentinel errors for the web layer's authorization checks.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied for role")
)

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

var errorPatterns = []errorPattern{
	// Database constraint errors
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this value already exists",
			Action:  "Check the document for repeated emails or organization names",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint conflict",
		msg: UserMessage{
			Message: "A record with this value already exists",
			Action:  "Check the document for repeated emails or organization names",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Review your data for duplicate values",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Create the organization with an O record first",
			Code:    "DB003",
		},
	},

	// Database connection errors
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
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// File errors
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the upload size limit",
			Action:  "Split the document into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the upload size limit",
			Action:  "Split the document into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid file type",
		msg: UserMessage{
			Message: "Only .txt files are accepted",
			Action:  "Save the document as plain text with a .txt extension",
			Code:    "FILE002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save file as UTF-8 encoding",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no such file",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a .txt file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a .txt file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a document with at least one record",
			Code:    "FILE005",
		},
	},

	// Bulk load errors
	{
		pattern: "read bulk load document",
		msg: UserMessage{
			Message: "The document could not be read",
			Action:  "Save the file as UTF-8 text and upload it again",
			Code:    "BLK001",
		},
	},
	{
		pattern: "too many concurrent bulk load sessions",
		msg: UserMessage{
			Message: "System is busy processing other bulk loads",
			Action:  "Please wait a moment and try again",
			Code:    "BLK002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The bulk load was cancelled",
			Action:  "Records before the cancellation were saved. Check the logs before retrying",
			Code:    "BLK003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The bulk load timed out",
			Action:  "Records before the timeout were saved. Upload the remaining lines separately",
			Code:    "BLK003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller document or try again later",
			Code:    "DB006",
		},
	},

	// Authorization errors
	{
		pattern: "authentication required",
		msg: UserMessage{
			Message: "You must be signed in",
			Action:  "Sign in and try again",
			Code:    "AUTH001",
		},
	},
	{
		pattern: "access denied for role",
		msg: UserMessage{
			Message: "You do not have access to this page",
			Action:  "Sign in with an administrator or sponsor account",
			Code:    "AUTH002",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Unmatched
// errors map to ERR000.
//
// Example:
//
//	msg := MapError(ErrTooManySessions)
//	// msg.Code == "BLK002"
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

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a specific pattern rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error for logging with its user message.
type UserError struct {
	Technical error
	User      UserMessage
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
