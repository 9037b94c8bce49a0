// Package logging defines the structured logger used by the plugin components.
// It is satisfied by *pluginapi.LogService, so components receive &client.Log in production.
package logging

// Logger writes structured key/value log lines.
type Logger interface {
	Debug(message string, keyValuePairs ...any)
	Info(message string, keyValuePairs ...any)
	Warn(message string, keyValuePairs ...any)
	Error(message string, keyValuePairs ...any)
}

// Nop discards everything.
type Nop struct{}

// NewNop returns a logger that drops all log lines.
func NewNop() Logger {
	return Nop{}
}

func (Nop) Debug(string, ...any) {}
func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}
