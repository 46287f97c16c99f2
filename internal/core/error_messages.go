package core

// error_messages.go maps technical errors to user-facing messages.
//
// Each message carries a code that users can quote to support. Codes are
// grouped by category:
//
//	POL001-POL003   policy loading (empty list, invalid content, unreadable file)
//	FILE001-FILE006 input files (size, format, email column, missing, empty, parse)
//	VAL001-VAL004   request options (thresholds, report kind, classifier provider)
//	RUN001-RUN006   run lifecycle (cancelled, busy, not found, timeouts)
//	CLS001-CLS002   external classifier
//	RATE001         request rate limiting
//	AUTH001-AUTH002 API key authentication
//	ERR000          fallback for anything else
//
// Patterns are matched case-insensitively against err.Error() and the first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage is an error explained for end users.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Policy
	{
		pattern: "policy list is empty",
		msg: UserMessage{
			Message: "A required policy list is empty",
			Action:  "Fill in tlds, popular_domains, disposable_domains, role_locals and providers",
			Code:    "POL001",
		},
	},
	{
		pattern: "invalid policy",
		msg: UserMessage{
			Message: "The policy file is invalid",
			Action:  "Check the policy YAML for syntax errors and conflicting entries",
			Code:    "POL002",
		},
	},
	{
		pattern: "read policy file",
		msg: UserMessage{
			Message: "The policy file could not be read",
			Action:  "Check POLICY_FILE points to a readable file",
			Code:    "POL003",
		},
	},

	// Files
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller parts",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported file format",
		msg: UserMessage{
			Message: "Only CSV and XLSX files are supported",
			Action:  "Save the file as .csv or .xlsx and try again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no email column found",
		msg: UserMessage{
			Message: "No email column was found",
			Action:  "Name the column \"Email\" or pass the column names explicitly",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV or XLSX file",
			Code:    "FILE004",
		},
	},
	{
		pattern: "file is empty",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a file with a header row and data",
			Code:    "FILE005",
		},
	},
	{
		pattern: "parse csv",
		msg: UserMessage{
			Message: "The file could not be parsed",
			Action:  "Ensure the CSV is comma-separated with balanced quotes",
			Code:    "FILE006",
		},
	},
	{
		pattern: "open xlsx",
		msg: UserMessage{
			Message: "The file could not be parsed",
			Action:  "Re-save the workbook in Excel as .xlsx",
			Code:    "FILE006",
		},
	},

	// Validation
	{
		pattern: "confidence threshold",
		msg: UserMessage{
			Message: "Confidence threshold is out of range",
			Action:  "Use a value between 0.50 and 0.99",
			Code:    "VAL001",
		},
	},
	{
		pattern: "near-duplicate threshold",
		msg: UserMessage{
			Message: "Near-duplicate threshold is out of range",
			Action:  "Use a value between 1 and 3",
			Code:    "VAL002",
		},
	},
	{
		pattern: "unknown report",
		msg: UserMessage{
			Message: "Unknown report",
			Action:  "Use rejected, changes or duplicates",
			Code:    "VAL003",
		},
	},
	{
		pattern: "classifier provider",
		msg: UserMessage{
			Message: "The classifier provider is misconfigured",
			Action:  "Check CLASSIFIER_PROVIDER and its API key or endpoint",
			Code:    "VAL004",
		},
	},

	// Runs
	{
		pattern: "run cancelled",
		msg: UserMessage{
			Message: "The run was cancelled",
			Action:  "Download the partial results or start a new run",
			Code:    "RUN001",
		},
	},
	{
		pattern: "too many concurrent runs",
		msg: UserMessage{
			Message: "System is busy",
			Action:  "Please wait a moment and try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Run not found",
			Action:  "The run may have expired. Please start a new run",
			Code:    "RUN003",
		},
	},
	{
		pattern: "run not finished",
		msg: UserMessage{
			Message: "The run is still in progress",
			Action:  "Wait for the run to complete",
			Code:    "RUN004",
		},
	},

	// Classifier errors are checked before generic context errors because the
	// guard wraps those.
	{
		pattern: "classifier response violates schema",
		msg: UserMessage{
			Message: "The classifier returned an unexpected response",
			Action:  "Results fall back to deterministic rules; check the classifier model",
			Code:    "CLS002",
		},
	},
	{
		pattern: "classifier unavailable",
		msg: UserMessage{
			Message: "The classifier is unavailable",
			Action:  "Results fall back to deterministic rules; try again later",
			Code:    "CLS001",
		},
	},

	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "RUN005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "RUN006",
		},
	},

	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},

	{
		pattern: "missing api key",
		msg: UserMessage{
			Message: "Authentication required",
			Action:  "Send the X-API-Key header",
			Code:    "AUTH001",
		},
	},
	{
		pattern: "invalid api key",
		msg: UserMessage{
			Message: "Invalid API key",
			Action:  "Check the API key and try again",
			Code:    "AUTH002",
		},
	},
}

// defaultMessage is returned when no pattern matches. Support should check
// the logs for the technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-facing message. A nil error
// maps to the zero UserMessage.
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

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
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

// NewUserError maps err. It returns nil for a nil error.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
