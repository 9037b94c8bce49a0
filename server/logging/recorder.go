package logging

import "sync"

// Entry is a recorded log line.
type Entry struct {
	Level   string
	Message string
	Fields  []any
}

// Recorder keeps every log line in memory. Useful for asserting on logs in tests.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Debug(message string, keyValuePairs ...any) {
	r.record("debug", message, keyValuePairs)
}

func (r *Recorder) Info(message string, keyValuePairs ...any) {
	r.record("info", message, keyValuePairs)
}

func (r *Recorder) Warn(message string, keyValuePairs ...any) {
	r.record("warn", message, keyValuePairs)
}

func (r *Recorder) Error(message string, keyValuePairs ...any) {
	r.record("error", message, keyValuePairs)
}

// Entries returns a copy of the recorded lines.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns how many lines were recorded at level.
func (r *Recorder) Count(level string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

func (r *Recorder) record(level, message string, fields []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: message, Fields: fields})
}
