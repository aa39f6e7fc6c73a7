package logger

import (
	"io"
	"regexp"
)

const redactedMarker = "[REDACTED]"

// Redactor masks provider credentials before log lines reach a sink
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor covering the credentials this service handles
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Anthropic before OpenAI so the longer prefix wins
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`sk-(?:proj-)?[a-zA-Z0-9_-]{20,}`),

			// Tavily search keys
			regexp.MustCompile(`tvly-[a-zA-Z0-9_-]{16,}`),

			// Token-shaped only: replacements must keep JSON log lines parseable.
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, redactedMarker)
	}
	return result
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success since callers account for the bytes they handed in.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
