package core

// error_messages.go maps technical errors to user-facing messages with a
// support code.
//
// Codes are grouped by category:
//
//	DB001-DB099   storage constraint and connection failures
//	VAL001-VAL099 header and field validation
//	FILE001-FILE099 upload and parse problems
//	IMP001-IMP099 import lifecycle (busy, cancelled, timed out)
//	REC001-REC099 record and group lookups
//	CFG001-CFG099 configuration
//	ERR000        fallback
//
// Known sentinel and typed errors are matched first with errors.Is/As. Other
// errors are matched case-insensitively by substring; the first matching
// pattern wins, so specific patterns come before general ones.

import (
	"context"
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

var (
	msgTooManyImports = UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP001",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "IMP002",
	}
	msgDeadline = UserMessage{
		Message: "Request timed out",
		Action:  "Try importing a smaller file or check your connection",
		Code:    "IMP003",
	}
	msgProgressNotFound = UserMessage{
		Message: "Import progress not found",
		Action:  "The import may have finished long ago. Check the client list instead",
		Code:    "IMP004",
	}
	msgRecordNotFound = UserMessage{
		Message: "Client not found",
		Action:  "Verify the client id is correct",
		Code:    "REC001",
	}
	msgGroupNotFound = UserMessage{
		Message: "Duplicate group not found",
		Action:  "Verify the group id is correct",
		Code:    "REC002",
	}
	msgInvalidHeaders = UserMessage{
		Message: "Invalid CSV headers",
		Action:  "Use the columns company_name, email and phone_number",
		Code:    "VAL001",
	}
	msgValidation = UserMessage{
		Message: "The submitted values are invalid",
		Action:  "Correct the highlighted fields and try again",
		Code:    "VAL002",
	}
	msgInvalidCSV = UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure file is comma-separated with consistent columns",
		Code:    "FILE002",
	}
	msgEmptyFile = UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Please upload a CSV file with a header row",
		Code:    "FILE005",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Storage constraints
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A client with this ID already exists",
			Action:  "Please try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for conflicting entries",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates check constraint",
		msg: UserMessage{
			Message: "A value was rejected by the database",
			Action:  "Check field lengths and try again",
			Code:    "DB003",
		},
	},

	// Storage connectivity
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
			Action:  "Try importing a smaller file or try again later",
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
		pattern: "database is locked",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// Field validation
	{
		pattern: "is required",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Provide company name, email and phone number",
			Code:    "VAL003",
		},
	},
	{
		pattern: "valid email address",
		msg: UserMessage{
			Message: "Invalid email address",
			Action:  "Use an address of the form name@example.com",
			Code:    "VAL004",
		},
	},
	{
		pattern: "cannot exceed",
		msg: UserMessage{
			Message: "A value is too long",
			Action:  fmt.Sprintf("Keep each field under %d characters", MaxFieldLength+1),
			Code:    "VAL005",
		},
	},

	// Files
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg:     msgInvalidCSV,
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
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to import",
			Code:    "FILE004",
		},
	},

	// Configuration
	{
		pattern: "unknown storage backend",
		msg: UserMessage{
			Message: "Storage backend is not configured",
			Action:  "Set STORAGE_BACKEND to postgres, sqlite or memory",
			Code:    "CFG001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// Support staff should check application logs for the original error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If nothing matches, a generic fallback with code ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if msg, ok := mapKnown(err); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

func mapKnown(err error) (UserMessage, bool) {
	var (
		headerErr *InvalidHeaderError
		malformed *MalformedInputError
		vr        ValidationResult
	)

	switch {
	case errors.Is(err, ErrTooManyImports):
		return msgTooManyImports, true
	case errors.Is(err, ErrRecordNotFound):
		return msgRecordNotFound, true
	case errors.Is(err, ErrGroupNotFound):
		return msgGroupNotFound, true
	case errors.Is(err, ErrProgressNotFound):
		return msgProgressNotFound, true
	case errors.Is(err, ErrEmptyFile):
		return msgEmptyFile, true
	case errors.As(err, &headerErr):
		return msgInvalidHeaders, true
	case errors.As(err, &malformed):
		return msgInvalidCSV, true
	case errors.As(err, &vr):
		return msgValidation, true
	case errors.Is(err, context.Canceled):
		return msgCancelled, true
	case errors.Is(err, context.DeadlineExceeded):
		return msgDeadline, true
	}
	return UserMessage{}, false
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something other than the ERR000
// fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
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
