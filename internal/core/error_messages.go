package core

// error_messages.go maps technical errors to user-facing messages with codes
// that users can quote to support.
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Unknown importer: No importer is registered under this name
//	         Action: Check the importer name against the list of importers
//	CFG002 - Bad definition: The importer definition is invalid
//	         Action: Contact the administrator to fix the importer definition
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - Unknown attribute: A column is mapped to a field this importer does not have
//	MAP002 - Required field: A required field has no column, or its column is missing
//	MAP003 - Duplicate mapping: Two columns are mapped to the same field
//
// # Row and Callback Errors
//
//	ROW001 - A row could not be read
//	CB001  - The importer failed while processing the data
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large          Patterns: "file too large", "request body too large"
//	FILE002 - Unsupported or invalid  Patterns: "unsupported file type", "invalid csv", "invalid xls"
//	FILE003 - Encoding error          Patterns: "encoding error"
//	FILE004 - Empty or missing file   Patterns: "empty file", "no file provided"
//	FILE005 - Upload expired          Patterns: "upload not found"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - System busy      (ErrTooManyRuns)
//	RUN002 - Cancelled        Patterns: "context canceled"
//	RUN003 - Timed out        Patterns: "context deadline exceeded", "timeout"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Support should check the logs for the
// technical error, which is logged with the request id.
//
// Typed errors are classified with errors.Is first. Anything else is matched
// case-insensitively against errorPatterns with strings.Contains; the first
// matching pattern wins, so specific patterns come before general ones.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

var (
	msgUnknownImporter = UserMessage{
		Message: "Unknown importer",
		Action:  "Check the importer name against the list of available importers",
		Code:    "CFG001",
	}
	msgBadDefinition = UserMessage{
		Message: "The importer is not configured correctly",
		Action:  "Contact the administrator to fix the importer definition",
		Code:    "CFG002",
	}
	msgUnknownAttribute = UserMessage{
		Message: "A column is mapped to a field this importer does not have",
		Action:  "Pick a field from the suggestion list or ignore the column",
		Code:    "MAP001",
	}
	msgRequiredUnmapped = UserMessage{
		Message: "A required field has no matching column",
		Action:  "Map a column to every required field",
		Code:    "MAP002",
	}
	msgDuplicateMapping = UserMessage{
		Message: "Two columns are mapped to the same field",
		Action:  "Map each field from one column only",
		Code:    "MAP003",
	}
	msgRowFailed = UserMessage{
		Message: "A row in the file could not be read",
		Action:  "Check the reported line for stray quotes or corrupt cells",
		Code:    "ROW001",
	}
	msgCallbackFailed = UserMessage{
		Message: "The import failed while processing your data",
		Action:  "Fix the data and run the import again",
		Code:    "CB001",
	}
	msgTooManyRuns = UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "RUN001",
	}
	msgCancelled = UserMessage{
		Message: "The import was cancelled",
		Action:  "Start the import again when ready",
		Code:    "RUN002",
	}
	msgTimedOut = UserMessage{
		Message: "The import timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "RUN003",
	}
)

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported file type",
		msg: UserMessage{
			Message: "This file type is not supported",
			Action:  "Upload a .csv, .tsv, .xls or .xlsx file",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is delimited text with a header row",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid xls",
		msg: UserMessage{
			Message: "File is not a readable spreadsheet",
			Action:  "Open the file in a spreadsheet program and save it again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File uses an unknown character encoding",
			Action:  "Save the file as UTF-8",
			Code:    "FILE003",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a file with a header row and data rows",
			Code:    "FILE004",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to import",
			Code:    "FILE004",
		},
	},
	{
		pattern: "upload not found",
		msg: UserMessage{
			Message: "The uploaded file is no longer available",
			Action:  "Upload the file again",
			Code:    "FILE005",
		},
	},
	{pattern: "context canceled", msg: msgCancelled},
	{pattern: "context deadline exceeded", msg: msgTimedOut},
	{pattern: "timeout", msg: msgTimedOut},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if msg, ok := classify(err); ok {
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

// classify maps the typed errors of this package.
func classify(err error) (UserMessage, bool) {
	var me *MappingError
	if errors.As(err, &me) {
		switch me.Problem {
		case UnknownAttribute:
			return msgUnknownAttribute, true
		case DuplicateTarget:
			return msgDuplicateMapping, true
		default:
			return msgRequiredUnmapped, true
		}
	}

	switch {
	case errors.Is(err, ErrImporterNotFound):
		return msgUnknownImporter, true
	case errors.Is(err, ErrConfiguration):
		return msgBadDefinition, true
	case errors.Is(err, ErrTooManyRuns):
		return msgTooManyRuns, true
	case errors.Is(err, context.Canceled):
		return msgCancelled, true
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimedOut, true
	case errors.Is(err, ErrRowProcessing):
		return msgRowFailed, true
	case errors.Is(err, ErrCallback):
		return msgCallbackFailed, true
	}
	return UserMessage{}, false
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logging, with its user message.
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
