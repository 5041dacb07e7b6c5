package domain

import "errors"

var (
	ErrMissingCredentials = errors.New("llm provider credentials are not configured")
	ErrMissingAssistant   = errors.New("assistant id is not configured")
	ErrEmptyMessage       = errors.New("message is required")
	ErrUpstream           = errors.New("llm provider request failed")

	ErrAccessDenied        = errors.New("incorrect access code")
	ErrAccessNotConfigured = errors.New("access code is not configured")
)
