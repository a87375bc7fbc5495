package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Redactor masks credentials in log lines. Keyed secrets keep their key so
// the line still says what was hidden.
type Redactor struct {
	rules []redactionRule
}

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		rules: []redactionRule{
			// Provider API keys
			{regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`), redacted},
			{regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`), redacted},

			// AWS keys
			{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), redacted},

			// Bearer tokens
			{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`), "Bearer " + redacted},

			// api_key, x-api-key, ANTHROPIC_API_KEY=, password, secret and token
			// values in JSON, header or key=value form
			{regexp.MustCompile(`(?i)("?(?:[a-z_-]*api[_-]?key|password|pwd|secret|token)"?\s*[:=]\s*"?)[^\s",}]+`), "${1}" + redacted},
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, redactionRule{pattern: re, replacement: redacted})
	return nil
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	for _, rule := range r.rules {
		s = rule.pattern.ReplaceAllString(s, rule.replacement)
	}
	return s
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

// Write reports len(p) on success since callers account for what they handed
// in, not the redacted length.
func (w *redactingWriter) Write(p []byte) (n int, err error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
