package domain

import (
	"fmt"
	"strings"
)

// ChatRequest is one chat turn sent by the browser.
type ChatRequest struct {
	Message       string `json:"message"`
	Context       string `json:"context,omitempty"`
	ThreadID      string `json:"threadId,omitempty"`
	GenerateAudio bool   `json:"generateAudio,omitempty"`
	AssistantID   string `json:"assistantId,omitempty"`
	TutorName     string `json:"tutorName,omitempty"`
}

func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

func (r ChatRequest) HasContext() bool {
	return strings.TrimSpace(r.Context) != ""
}

// ComposeUserText returns the text appended to the thread for this turn.
func (r ChatRequest) ComposeUserText() string {
	if !r.HasContext() {
		return r.Message
	}
	return fmt.Sprintf("Context: %s\n\nUser Message: %s", r.Context, r.Message)
}
