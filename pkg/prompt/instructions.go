package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

const personaTemplate = `You are Kalypso, a patient and encouraging study assistant working alongside {{.TutorName}}.
Help the student understand ideas rather than handing over final answers.
Ask a short guiding question when the student seems stuck, keep explanations concise,
and suggest booking time with {{.TutorName}} for anything that needs a full session.
Reply in the language the student writes in.`

const contextTemplate = `The current date and time is {{.Now}}.
The student is currently looking at the following page or situation; use it to ground your answer:
{{.Context}}`

// NowLayout is how the current time is presented to the model.
const NowLayout = "Monday, January 2, 2006 at 3:04 PM MST"

type Composer struct {
	persona          *template.Template
	context          *template.Template
	defaultTutorName string
	now              func() time.Time
}

type Option func(*Composer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

func NewComposer(defaultTutorName string, opts ...Option) *Composer {
	c := &Composer{
		persona:          template.Must(template.New("persona").Parse(personaTemplate)),
		context:          template.Must(template.New("context").Parse(contextTemplate)),
		defaultTutorName: defaultTutorName,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose builds the instructions for a single run. They are not stored on
// the thread.
func (c *Composer) Compose(tutorName, pageContext string) (string, error) {
	if strings.TrimSpace(tutorName) == "" {
		tutorName = c.defaultTutorName
	}

	var buf bytes.Buffer
	if err := c.persona.Execute(&buf, struct{ TutorName string }{tutorName}); err != nil {
		return "", fmt.Errorf("rendering persona: %w", err)
	}

	if strings.TrimSpace(pageContext) == "" {
		return buf.String(), nil
	}

	buf.WriteString("\n\n")
	data := struct{ Now, Context string }{
		Now:     c.now().Format(NowLayout),
		Context: pageContext,
	}
	if err := c.context.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering context: %w", err)
	}

	return buf.String(), nil
}
