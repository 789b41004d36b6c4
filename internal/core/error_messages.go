// Package core provides the business logic for contact import operations.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. When operators encounter errors, they can quote the error
// code to support staff for faster diagnosis.
//
// Error codes are grouped by category:
//
// # Snapshot Errors (SNAP001-SNAP099)
//
//	SNAP001 - Snapshot not found
//	          Action: Refresh the snapshot list; it may have been deleted
//	SNAP002 - Already rolled back: this snapshot was rolled back before
//	          Action: A snapshot can only be rolled back once
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Missing identity: a record has neither email nor phone
//	          Action: Add an email address or phone number to the row
//	VAL002 - Invalid mode: update mode must be replace or append
//	          Action: Choose either replace or append
//	VAL003 - Malformed request body or parameters
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key or unique constraint violation
//	DB002 - Connection refused or reset
//	DB003 - Operation timed out
//	DB004 - Deadlock between concurrent batches
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - No records: the mapped file contained no data rows
//	IMP002 - Unknown columns: headers could not be mapped to fields
//	IMP003 - Too many concurrent imports
//	          Action: Wait a moment and try again
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Patterns are matched
// case-insensitively with strings.Contains; the first match wins, so more
// specific patterns come before general ones.
package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this identity already exists",
			Action:  "Review the preview for duplicate email or phone values",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Review the preview for duplicate email or phone values",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "The database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "The database was busy with a conflicting operation",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The operation timed out",
			Action:  "Try a smaller batch or try again later",
			Code:    "DB003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The operation timed out",
			Action:  "Try a smaller batch or try again later",
			Code:    "DB003",
		},
	},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The request could not be understood",
			Action:  "Check the request format and try again",
			Code:    "VAL003",
		},
	},
	{
		pattern: "no records",
		msg: UserMessage{
			Message: "The uploaded file contained no data rows",
			Action:  "Check that the file has a header row and at least one data row",
			Code:    "IMP001",
		},
	},
	{
		pattern: "could not be mapped",
		msg: UserMessage{
			Message: "The file's columns could not be mapped to contact fields",
			Action:  "Rename the headers to Company, Name, Surname, Email, Position, Phone",
			Code:    "IMP002",
		},
	},
	{
		pattern: "too many concurrent",
		msg: UserMessage{
			Message: "The system is busy processing other imports",
			Action:  "Wait a moment and try again",
			Code:    "IMP003",
		},
	},
}

// MapError converts a technical error into a user-friendly message.
// Typed errors are matched first; everything else falls through to
// case-insensitive pattern matching on the error text.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{Message: "Operation completed", Code: "OK"}
	}

	var vErr *ValidationError
	switch {
	case errors.Is(err, ErrSnapshotNotFound):
		return UserMessage{
			Message: "Snapshot not found",
			Action:  "Refresh the snapshot list; it may have been deleted",
			Code:    "SNAP001",
		}
	case errors.Is(err, ErrAlreadyRolledBack):
		return UserMessage{
			Message: "This snapshot has already been rolled back",
			Action:  "A snapshot can only be rolled back once",
			Code:    "SNAP002",
		}
	case errors.As(err, &vErr):
		return UserMessage{
			Message: fmt.Sprintf("Row %d has neither an email address nor a phone number", vErr.Row+1),
			Action:  "Every row needs an email or a phone to be matched",
			Code:    "VAL001",
		}
	case errors.Is(err, ErrInvalidMode):
		return UserMessage{
			Message: "The update mode must be replace or append",
			Action:  "Choose either replace or append",
			Code:    "VAL002",
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(errStr, p.pattern) {
			return p.msg
		}
	}

	return UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or contact support",
		Code:    "ERR000",
	}
}
