package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type contextKey string

const requestIDKey contextKey = "request_id"

type Handler struct {
	groups []string
	attrs  []slog.Attr

	opts Options

	mu  *sync.Mutex
	out io.Writer
}

// NewHandler creates a new Handler with the specified options. If opts is nil, uses [DefaultOptions].
func NewHandler(out io.Writer, opts *Options) *Handler {
	h := &Handler{out: out, mu: &sync.Mutex{}}
	if opts == nil {
		h.opts = *DefaultOptions
	} else {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	return h
}

func (h *Handler) clone() *Handler {
	return &Handler{
		groups: h.groups,
		attrs:  h.attrs,
		opts:   h.opts,
		mu:     h.mu,
		out:    h.out,
	}
}

// Enabled implements slog.Handler.Enabled .
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle implements slog.Handler.Handle .
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	bf := getBuffer()
	bf.Reset()
	defer freeBuffer(bf)

	if !r.Time.IsZero() {
		fmt.Fprint(bf, color.New(color.Faint).Sprint(r.Time.Format(h.opts.TimeFormat)), " ")
	}

	if requestID, ok := RequestIDFromContext(ctx); ok {
		fmt.Fprint(bf, color.New(color.FgMagenta).Sprint(shortID(requestID)), " ")
	}

	fmt.Fprint(bf, levelLabel(r.Level), " ")

	if h.opts.AddSource && r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		fmt.Fprintf(bf, "%s:%d ", filepath.Base(f.File), f.Line)
	}

	fmt.Fprint(bf, h.opts.MsgPrefix, r.Message)

	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, a := range attrs {
		if a.Equal(slog.Attr{}) {
			continue
		}
		keyColor := color.New(color.FgCyan)
		if a.Key == errKey {
			keyColor = color.New(color.FgRed)
		}
		fmt.Fprint(bf, " ", keyColor.Sprintf("%s%s=", prefix, a.Key), formatValue(a.Value))
	}

	fmt.Fprint(bf, "\n")

	if h.opts.NoColor {
		stripANSI(bf)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.Copy(h.out, bf)
	return err
}

// WithGroup implements slog.Handler.WithGroup .
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(append([]string{}, h.groups...), name)
	return h2
}

// WithAttrs implements slog.Handler.WithAttrs .
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := h.clone()
	h2.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return h2
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return color.New(color.BgRed, color.FgHiWhite).Sprint("ERROR")
	case level >= slog.LevelWarn:
		return color.New(color.BgYellow, color.FgHiWhite).Sprint("WARN ")
	case level >= slog.LevelInfo:
		return color.New(color.BgGreen, color.FgHiWhite).Sprint("INFO ")
	default:
		return color.New(color.BgCyan, color.FgHiWhite).Sprint("DEBUG")
	}
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindString && strings.ContainsAny(v.String(), " \t\n\"=") {
		return fmt.Sprintf("%q", v.String())
	}
	return v.String()
}

// shortID keeps log lines narrow; full ids are returned to clients in headers.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var bufPool = sync.Pool{
	New: func() any {
		return &bytes.Buffer{}
	},
}

func getBuffer() *bytes.Buffer {
	return bufPool.Get().(*bytes.Buffer)
}

func freeBuffer(bf *bytes.Buffer) {
	bufPool.Put(bf)
}

// re is the regular expression used for removing ANSI colors.
var re = regexp.MustCompile("[\u001B\u009B][[\\]()#;?]*(?:(?:(?:[a-zA-Z\\d]*(?:;[a-zA-Z\\d]*)*)?\u0007)|(?:(?:\\d{1,4}(?:;\\d{0,4})*)?[\\dA-PRZcf-ntqry=><~]))")

// stripANSI removes ANSI escape sequences from the provided bytes.Buffer.
func stripANSI(bf *bytes.Buffer) {
	cleaned := re.ReplaceAll(bf.Bytes(), nil)
	bf.Reset()
	bf.Write(cleaned)
}

var DefaultOptions = &Options{
	Level:      slog.LevelInfo,
	TimeFormat: time.DateTime,
	AddSource:  true,
	MsgPrefix:  "| ",
}

type Options struct {
	// Level reports the minimum level to log.
	// If nil, the Handler uses [slog.LevelInfo].
	Level slog.Leveler

	// TimeFormat is the time format.
	TimeFormat string

	// AddSource prints file:line of the log call.
	AddSource bool

	// MsgPrefix is printed before the message.
	MsgPrefix string

	// NoColor disables color, default: false.
	NoColor bool
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

const errKey = "err"

// Err is the attribute used for every logged error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(errKey, err.Error())
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	requestID, ok := ctx.Value(requestIDKey).(string)
	return requestID, ok && requestID != ""
}
