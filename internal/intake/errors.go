// Watchlog Intake - OCR Watch History Extraction Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchlog-intake

package intake

// Error codes recorded on metric rows. They classify which stage degraded
// the request, not what the client did wrong.
const (
	CodeRateLimited              = "rate_limited"
	CodeGroqTimeout              = "groq_timeout"
	CodeGroqFailure              = "groq_failure"
	CodeGroqInvalidResponse      = "groq_invalid_response"
	CodeSecondaryInvalidResponse = "secondary_invalid_response"
	CodeSecondaryLLMFailed       = "secondary_llm_failed"
	CodeLLMFallback              = "llm_fallback"
)

// InputError reports a malformed request payload. The HTTP layer renders
// it as a 400.
type InputError struct {
	Message string
}

// Error implements the error interface.
func (e *InputError) Error() string { return e.Message }

// NewInputError builds an InputError with the given client-facing message.
func NewInputError(message string) *InputError {
	return &InputError{Message: message}
}
