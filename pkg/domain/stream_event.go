package domain

type EventType string

const (
	EventThreadID    EventType = "thread_id"
	EventTextDelta   EventType = "text_delta"
	EventAudioData   EventType = "audio_data"
	EventAudioStatus EventType = "audio_status"
	EventError       EventType = "error"
	EventStreamEnd   EventType = "stream_end"
)

const AudioStatusError = "error"

// StreamEvent is one frame of the chat stream. Only the fields belonging to
// Type are set.
type StreamEvent struct {
	Type     EventType `json:"type"`
	Value    string    `json:"value,omitempty"`
	Status   string    `json:"status,omitempty"`
	Message  string    `json:"message,omitempty"`
	ThreadID string    `json:"threadId,omitempty"`
}

func ThreadIDEvent(threadID string) StreamEvent {
	return StreamEvent{Type: EventThreadID, Value: threadID}
}

func TextDeltaEvent(text string) StreamEvent {
	return StreamEvent{Type: EventTextDelta, Value: text}
}

func AudioDataEvent(b64 string) StreamEvent {
	return StreamEvent{Type: EventAudioData, Value: b64}
}

func AudioErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventAudioStatus, Status: AudioStatusError, Message: message}
}

func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}

func StreamEndEvent(threadID string) StreamEvent {
	return StreamEvent{Type: EventStreamEnd, ThreadID: threadID}
}

// IsTerminal reports whether no further events may follow e.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventError || e.Type == EventStreamEnd
}
