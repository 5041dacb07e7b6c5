package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dskvich/kalypso-relay/pkg/api/sse"
	"github.com/dskvich/kalypso-relay/pkg/domain"
)

func streamServer(t *testing.T, events ...domain.StreamEvent) (*httptest.Server, *domain.ChatRequest) {
	var got domain.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		stream, err := sse.NewWriter(w)
		require.NoError(t, err)
		stream.Open()
		for _, e := range events {
			require.NoError(t, stream.Send(e))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestChat(t *testing.T) {
	srv, got := streamServer(t,
		domain.ThreadIDEvent("thread_1"),
		domain.TextDeltaEvent("Hi "),
		domain.TextDeltaEvent("there"),
		domain.AudioDataEvent("SUQz"),
		domain.StreamEndEvent("thread_1"),
	)

	var seen []domain.EventType
	last, err := New(srv.URL+"/", nil).Chat(context.Background(),
		domain.ChatRequest{Message: "Hello", GenerateAudio: true},
		func(e domain.StreamEvent) { seen = append(seen, e.Type) },
	)
	require.NoError(t, err)

	assert.Equal(t, domain.EventStreamEnd, last.Type)
	assert.Equal(t, "thread_1", last.ThreadID)
	assert.Equal(t, []domain.EventType{
		domain.EventThreadID, domain.EventTextDelta, domain.EventTextDelta, domain.EventAudioData, domain.EventStreamEnd,
	}, seen)
	assert.Equal(t, domain.ChatRequest{Message: "Hello", GenerateAudio: true}, *got)
}

func TestChatTerminalError(t *testing.T) {
	srv, _ := streamServer(t,
		domain.ThreadIDEvent("thread_1"),
		domain.ErrorEvent("Rate limit reached"),
	)

	last, err := New(srv.URL, nil).Chat(context.Background(), domain.ChatRequest{Message: "Hello"}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.EventError, last.Type)
	assert.Equal(t, "Rate limit reached", last.Message)
}

func TestChatStreamWithoutTerminalEvent(t *testing.T) {
	srv, _ := streamServer(t, domain.ThreadIDEvent("thread_1"))

	_, err := New(srv.URL, nil).Chat(context.Background(), domain.ChatRequest{Message: "Hello"}, nil)
	assert.ErrorContains(t, err, "stream closed")
}

func TestChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Message is required."}`))
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, nil).Chat(context.Background(), domain.ChatRequest{}, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Message is required.", apiErr.Message)
}

func TestUnlock(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantSuccess bool
		wantErr     bool
	}{
		{name: "granted", status: http.StatusOK, body: `{"success":true}`, wantSuccess: true},
		{name: "denied", status: http.StatusUnauthorized, body: `{"success":false,"error":"Incorrect code."}`},
		{name: "not configured", status: http.StatusInternalServerError, body: `{"success":false,"error":"Access is not configured."}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/access", r.URL.Path)
				var req domain.AccessRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "secret", req.Code)

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			resp, err := New(srv.URL, nil).Unlock(context.Background(), "secret")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, resp.Success)
		})
	}
}
