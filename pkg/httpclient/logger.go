package httpclient

import (
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// Logger is the part of the service logger resty diagnostics are sent to.
type Logger interface {
	DebugObj(msg, event string, fields map[string]any)
	WarnObj(msg, event string, fields map[string]any)
	ErrorObj(msg, event string, fields map[string]any)
}

type restyLogger struct {
	log Logger
}

// RestyLogger adapts log to resty's logger. A nil log discards resty output instead of
// letting resty write to stderr.
func RestyLogger(log Logger) resty.Logger {
	return restyLogger{log: log}
}

// WithLogger routes resty diagnostics to log.
func WithLogger(log Logger) Option {
	return func(c *resty.Client) { c.SetLogger(RestyLogger(log)) }
}

func (l restyLogger) Errorf(format string, v ...any) {
	if l.log != nil {
		l.log.ErrorObj(line(format, v), "http_client_error", nil)
	}
}

func (l restyLogger) Warnf(format string, v ...any) {
	if l.log != nil {
		l.log.WarnObj(line(format, v), "http_client_warning", nil)
	}
}

func (l restyLogger) Debugf(format string, v ...any) {
	if l.log != nil {
		l.log.DebugObj(line(format, v), "http_client_debug", nil)
	}
}

func line(format string, v []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, v...))
}
