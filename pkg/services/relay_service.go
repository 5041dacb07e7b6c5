package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dskvich/kalypso-relay/pkg/domain"
	"github.com/dskvich/kalypso-relay/pkg/logger"
)

// Provider is the LLM side of the relay. Threads live only on the provider.
type Provider interface {
	CreateThread(ctx context.Context) (string, error)
	AppendMessage(ctx context.Context, threadID, text string) error
	StreamRun(ctx context.Context, threadID, assistantID, instructions string) (<-chan domain.RunDelta, error)
	CancelRun(ctx context.Context, threadID, runID string) error
}

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type InstructionComposer interface {
	Compose(tutorName, pageContext string) (string, error)
}

// Messages shown to the browser. Full errors only go to the log.
const (
	msgRunInterrupted   = "The connection to the assistant was interrupted. Please try again."
	msgRunTimeout       = "The assistant took too long to respond. Please try again."
	msgRunStartFailed   = "The assistant could not start a reply. Please try again."
	msgUnsupportedTools = "The assistant tried to use a feature this chat does not support."
	msgAudioDisabled    = "Audio is unavailable: speech synthesis is not configured."
	msgAudioEmptyReply  = "Audio cannot be generated for an empty reply."
	msgAudioFailed      = "Audio generation failed."
	msgAudioTimeout     = "Audio generation timed out."
)

type RelayOptions struct {
	DefaultAssistantID string
	ThreadTimeout      time.Duration
	RunTimeout         time.Duration
	SpeechTimeout      time.Duration
}

type relayService struct {
	provider Provider
	speech   SpeechSynthesizer
	composer InstructionComposer
	opts     RelayOptions
}

// NewRelayService builds the chat relay. A nil provider means the LLM key is
// missing and every chat fails with ErrMissingCredentials; a nil speech
// synthesizer disables audio.
func NewRelayService(
	provider Provider,
	speech SpeechSynthesizer,
	composer InstructionComposer,
	opts RelayOptions,
) *relayService {
	if opts.ThreadTimeout <= 0 {
		opts.ThreadTimeout = 15 * time.Second
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 2 * time.Minute
	}
	if opts.SpeechTimeout <= 0 {
		opts.SpeechTimeout = 30 * time.Second
	}

	return &relayService{
		provider: provider,
		speech:   speech,
		composer: composer,
		opts:     opts,
	}
}

// Handle runs one chat turn. Errors returned here happen before any event is
// produced. Otherwise the channel yields thread_id first and ends with exactly
// one error or stream_end event; it closes early without a terminal event
// only when ctx is cancelled.
func (r *relayService) Handle(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamEvent, error) {
	if r.provider == nil {
		return nil, domain.ErrMissingCredentials
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	assistantID := req.AssistantID
	if assistantID == "" {
		assistantID = r.opts.DefaultAssistantID
	}
	if assistantID == "" {
		return nil, domain.ErrMissingAssistant
	}

	instructions, err := r.composer.Compose(req.TutorName, req.Context)
	if err != nil {
		return nil, fmt.Errorf("composing instructions: %w", err)
	}

	threadID, err := r.prepareThread(ctx, req.ThreadID, req.ComposeUserText())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}

	slog.InfoContext(ctx, "Starting chat turn",
		"threadID", threadID,
		"assistantID", assistantID,
		"newThread", req.ThreadID == "",
		"generateAudio", req.GenerateAudio,
	)

	events := make(chan domain.StreamEvent, 32)
	go r.stream(ctx, events, threadID, assistantID, instructions, req.GenerateAudio)

	return events, nil
}

func (r *relayService) prepareThread(ctx context.Context, threadID, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ThreadTimeout)
	defer cancel()

	if threadID == "" {
		var err error
		if threadID, err = r.provider.CreateThread(ctx); err != nil {
			return "", err
		}
	}

	if err := r.provider.AppendMessage(ctx, threadID, text); err != nil {
		return "", err
	}
	return threadID, nil
}

type turn struct {
	ctx      context.Context
	out      chan<- domain.StreamEvent
	threadID string
	runID    string
	reply    strings.Builder
	deltas   int
	started  time.Time
}

func (t *turn) emit(e domain.StreamEvent) bool {
	if t.ctx.Err() != nil {
		return false
	}
	select {
	case t.out <- e:
		return true
	case <-t.ctx.Done():
		return false
	}
}

func (r *relayService) stream(ctx context.Context, out chan<- domain.StreamEvent, threadID, assistantID, instructions string, generateAudio bool) {
	defer close(out)

	t := &turn{ctx: ctx, out: out, threadID: threadID, started: time.Now()}

	// The caller needs the id even if generation fails.
	if !t.emit(domain.ThreadIDEvent(threadID)) {
		return
	}

	if !r.generate(t, assistantID, instructions) {
		return
	}

	if generateAudio {
		if !t.emit(r.audioEvent(ctx, t.reply.String())) {
			return
		}
	}

	if t.emit(domain.StreamEndEvent(threadID)) {
		slog.InfoContext(ctx, "Chat turn finished",
			"threadID", threadID,
			"deltas", t.deltas,
			"replyLength", t.reply.Len(),
			"duration", time.Since(t.started).Round(time.Millisecond),
		)
	}
}

// generate forwards the run's text and reports whether it completed. On
// failure it has already emitted the terminal error event.
func (r *relayService) generate(t *turn, assistantID, instructions string) bool {
	runCtx, cancel := context.WithTimeout(t.ctx, r.opts.RunTimeout)
	defer cancel()

	deltas, err := r.provider.StreamRun(runCtx, t.threadID, assistantID, instructions)
	if err != nil {
		slog.ErrorContext(t.ctx, "Starting run failed", "threadID", t.threadID, logger.Err(err))
		t.emit(domain.ErrorEvent(msgRunStartFailed))
		return false
	}

	for d := range deltas {
		switch d.Kind {
		case domain.RunStarted:
			t.runID = d.RunID
		case domain.RunText:
			t.reply.WriteString(d.Text)
			t.deltas++
			if !t.emit(domain.TextDeltaEvent(d.Text)) {
				r.cancelRun(t)
				return false
			}
		case domain.RunRequiresAction:
			if d.RunID != "" {
				t.runID = d.RunID
			}
			slog.WarnContext(t.ctx, "Run requires action, cancelling", "threadID", t.threadID, "runID", t.runID, logger.Err(d.Err))
			r.cancelRun(t)
			t.emit(domain.ErrorEvent(msgUnsupportedTools))
			return false
		case domain.RunFailed:
			slog.ErrorContext(t.ctx, "Run failed", "threadID", t.threadID, "runID", t.runID, logger.Err(d.Err))
			t.emit(domain.ErrorEvent(runFailureMessage(d.Err)))
			return false
		case domain.RunCompleted:
			return true
		}
	}

	// The delta channel closed without a verdict: our context ended.
	switch {
	case t.ctx.Err() != nil:
		slog.InfoContext(t.ctx, "Client went away mid-stream", "threadID", t.threadID, "deltas", t.deltas)
		r.cancelRun(t)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		slog.ErrorContext(t.ctx, "Run timed out", "threadID", t.threadID, "timeout", r.opts.RunTimeout)
		r.cancelRun(t)
		t.emit(domain.ErrorEvent(msgRunTimeout))
	default:
		t.emit(domain.ErrorEvent(msgRunInterrupted))
	}
	return false
}

// runFailureMessage forwards the provider's own reason when it reported one.
func runFailureMessage(err error) string {
	var reported interface{ ProviderMessage() string }
	if errors.As(err, &reported) && reported.ProviderMessage() != "" {
		return reported.ProviderMessage()
	}
	return msgRunInterrupted
}

func (r *relayService) cancelRun(t *turn) {
	if t.runID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(t.ctx), r.opts.ThreadTimeout)
	defer cancel()

	if err := r.provider.CancelRun(ctx, t.threadID, t.runID); err != nil {
		slog.WarnContext(ctx, "Cancelling run failed", "threadID", t.threadID, "runID", t.runID, logger.Err(err))
	}
}

func (r *relayService) audioEvent(ctx context.Context, reply string) domain.StreamEvent {
	if r.speech == nil {
		return domain.AudioErrorEvent(msgAudioDisabled)
	}
	if strings.TrimSpace(reply) == "" {
		return domain.AudioErrorEvent(msgAudioEmptyReply)
	}

	speechCtx, cancel := context.WithTimeout(ctx, r.opts.SpeechTimeout)
	defer cancel()

	audio, err := r.speech.Synthesize(speechCtx, reply)
	if err != nil {
		slog.ErrorContext(ctx, "Speech synthesis failed", "replyLength", len(reply), logger.Err(err))
		if errors.Is(speechCtx.Err(), context.DeadlineExceeded) {
			return domain.AudioErrorEvent(msgAudioTimeout)
		}
		return domain.AudioErrorEvent(msgAudioFailed)
	}

	return domain.AudioDataEvent(base64.StdEncoding.EncodeToString(audio))
}
