package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		message string
		wantErr error
	}{
		{"empty", "", ErrEmptyMessage},
		{"whitespace", " \n\t", ErrEmptyMessage},
		{"text", "Hello", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ChatRequest{Message: tt.message}.Validate()
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChatRequestComposeUserText(t *testing.T) {
	tests := []struct {
		name string
		req  ChatRequest
		want string
	}{
		{
			name: "no context",
			req:  ChatRequest{Message: "What is 2+2?"},
			want: "What is 2+2?",
		},
		{
			name: "blank context",
			req:  ChatRequest{Message: "What is 2+2?", Context: "   "},
			want: "What is 2+2?",
		},
		{
			name: "with context",
			req:  ChatRequest{Message: "Explain this", Context: "Algebra worksheet, question 4"},
			want: "Context: Algebra worksheet, question 4\n\nUser Message: Explain this",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.ComposeUserText())
		})
	}
}

func TestStreamEventIsTerminal(t *testing.T) {
	assert.False(t, ThreadIDEvent("thread_1").IsTerminal())
	assert.False(t, TextDeltaEvent("hi").IsTerminal())
	assert.False(t, AudioDataEvent("aGk=").IsTerminal())
	assert.False(t, AudioErrorEvent("voice unavailable").IsTerminal())
	assert.True(t, ErrorEvent("boom").IsTerminal())
	assert.True(t, StreamEndEvent("thread_1").IsTerminal())
}

func TestAudioErrorEventStatus(t *testing.T) {
	e := AudioErrorEvent("voice unavailable")

	assert.Equal(t, EventAudioStatus, e.Type)
	assert.Equal(t, AudioStatusError, e.Status)
	assert.Equal(t, "voice unavailable", e.Message)
}
