package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// StepLog represents a single coroutine-step log entry: one element-frame
// transition, independent of the operational slog stream.
type StepLog struct {
	Timestamp  time.Time `json:"timestamp"`
	CoroutineID string   `json:"coroutine_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	SpanID     string    `json:"span_id,omitempty"`
	Element    string    `json:"element"`
	NextStep   string    `json:"next_step"`
	DurationUs int64     `json:"duration_us"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Except     string    `json:"except,omitempty"`
}

// StepLogger handles per-step request logging, separate from the
// operational logger used for daemon/infrastructure events.
type StepLogger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console bool
}

var defaultStepLogger = &StepLogger{enabled: true, console: false}

// DefaultStepLogger returns the process-wide step logger.
func DefaultStepLogger() *StepLogger {
	return defaultStepLogger
}

// SetOutput sets the log output file.
func (l *StepLogger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole enables/disables console output.
func (l *StepLogger) SetConsole(enabled bool) {
	l.mu.Lock()
	l.console = enabled
	l.mu.Unlock()
}

// Log writes a step log entry.
func (l *StepLogger) Log(entry *StepLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	entry.Timestamp = time.Now()

	if l.console {
		status := "✓"
		if !entry.Success {
			status = "✗"
		}
		exc := ""
		if entry.Except != "" {
			exc = fmt.Sprintf(" [except:%s]", entry.Except)
		}
		fmt.Printf("[step] %s %s %s %dus%s\n",
			status, entry.CoroutineID, entry.Element, entry.DurationUs, exc)
		if entry.Error != "" {
			fmt.Printf("[step]   error: %s\n", entry.Error)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close closes the log file.
func (l *StepLogger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
