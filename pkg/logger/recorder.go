package logger

import (
	"fmt"
	"sync"
)

// Entry is one message captured by a Recorder
type Entry struct {
	Level   Level
	Job     string
	Message string
}

// Recorder keeps every message in memory. It backs audit trails and tests.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

var _ Logger = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Entries returns a copy of the captured messages
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Errors returns the captured error messages
func (r *Recorder) Errors() []string {
	var out []string
	for _, e := range r.Entries() {
		if e.Level == ErrorLevel {
			out = append(out, e.Message)
		}
	}
	return out
}

func (r *Recorder) record(level Level, job string, format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Job: job, Message: fmt.Sprintf(format, args...)})
}

func (r *Recorder) Info(format string, args ...interface{}) { r.record(InfoLevel, "", format, args...) }
func (r *Recorder) InfoWithJob(job string, format string, args ...interface{}) {
	r.record(InfoLevel, job, format, args...)
}
func (r *Recorder) Error(format string, args ...interface{}) {
	r.record(ErrorLevel, "", format, args...)
}
func (r *Recorder) ErrorWithJob(job string, format string, args ...interface{}) {
	r.record(ErrorLevel, job, format, args...)
}
func (r *Recorder) Debug(format string, args ...interface{}) {
	r.record(DebugLevel, "", format, args...)
}
func (r *Recorder) DebugWithJob(job string, format string, args ...interface{}) {
	r.record(DebugLevel, job, format, args...)
}
func (r *Recorder) Notice(format string, args ...interface{}) {
	r.record(NoticeLevel, "", format, args...)
}
func (r *Recorder) NoticeWithJob(job string, format string, args ...interface{}) {
	r.record(NoticeLevel, job, format, args...)
}
