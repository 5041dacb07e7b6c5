package sse

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dskvich/kalypso-relay/pkg/domain"
)

type nonFlusher struct {
	http.ResponseWriter
}

func TestNewWriterRequiresFlusher(t *testing.T) {
	_, err := NewWriter(nonFlusher{httptest.NewRecorder()})
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
}

func TestWriterFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	w.Open()
	require.NoError(t, w.Send(domain.ThreadIDEvent("thread_1")))
	require.NoError(t, w.Send(domain.TextDeltaEvent("Hi")))
	require.NoError(t, w.Send(domain.StreamEndEvent("thread_1")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.True(t, rec.Flushed)

	assert.Equal(t,
		`data: {"type":"thread_id","value":"thread_1"}`+"\n\n"+
			`data: {"type":"text_delta","value":"Hi"}`+"\n\n"+
			`data: {"type":"stream_end","threadId":"thread_1"}`+"\n\n",
		rec.Body.String())
}

func TestWriterRoundTripThroughReader(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	sent := []domain.StreamEvent{
		domain.ThreadIDEvent("thread_1"),
		domain.TextDeltaEvent("line one\nline two"),
		domain.AudioErrorEvent("Audio generation failed."),
		domain.StreamEndEvent("thread_1"),
	}
	for _, e := range sent {
		require.NoError(t, w.Send(e))
	}

	r := NewReader(rec.Body)
	var got []domain.StreamEvent
	for {
		var e domain.StreamEvent
		err := r.Decode(&e)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, e)
	}
	assert.Equal(t, sent, got)
}

func TestReaderNext(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single frames",
			input: "data: {\"a\":1}\n\ndata: {\"b\":2}\n\n",
			want:  []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name:  "multi-line data and comments",
			input: ": ping\n\ndata: one\ndata: two\n\n",
			want:  []string{"one\ntwo"},
		},
		{
			name:  "no space after colon",
			input: "data:{\"a\":1}\n\n",
			want:  []string{`{"a":1}`},
		},
		{
			name:  "trailing frame without blank line",
			input: "data: last",
			want:  []string{"last"},
		},
		{
			name:  "ignores other fields",
			input: "event: message\nid: 7\ndata: x\n\n",
			want:  []string{"x"},
		},
		{
			name:  "empty",
			input: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tt.input))

			var got []string
			for {
				data, err := r.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				require.NoError(t, err)
				got = append(got, string(data))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReaderDecodeError(t *testing.T) {
	r := NewReader(strings.NewReader("data: not-json\n\n"))

	var e domain.StreamEvent
	assert.ErrorContains(t, r.Decode(&e), "decoding event")
}
