package domain

type RunDeltaKind int

const (
	// RunStarted carries the provider run id.
	RunStarted RunDeltaKind = iota
	RunText
	RunFailed
	// RunRequiresAction means the assistant asked for tool outputs.
	RunRequiresAction
	RunCompleted
)

// RunDelta is one item read from a streaming generation run.
type RunDelta struct {
	Kind  RunDeltaKind
	RunID string
	Text  string
	// Err is set for RunFailed and RunRequiresAction.
	Err error
}
