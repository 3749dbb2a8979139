// Package transcript persists finished research sessions as NDJSON files.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/ashureev/classgrade/internal/research"
)

// Config controls transcript logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Line is one NDJSON record. Kind is "message", "search" or "summary".
type Line struct {
	Timestamp  time.Time                `json:"ts"`
	SessionID  string                   `json:"session_id"`
	CourseID   string                   `json:"course_id"`
	Kind       string                   `json:"kind"`
	Seq        int                      `json:"seq"`
	Message    *research.Message        `json:"message,omitempty"`
	Search     *research.ToolInvocation `json:"search,omitempty"`
	Rounds     int                      `json:"rounds,omitempty"`
	Provider   string                   `json:"provider,omitempty"`
	Usage      *research.Usage          `json:"usage,omitempty"`
	DurationMS int64                    `json:"duration_ms,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

var safeName = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Logger writes sessions asynchronously. Record never blocks; sessions that
// do not fit in the queue are dropped with a warning.
type Logger struct {
	dir    string
	queue  chan *research.Session
	logger *slog.Logger
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates a transcript logger and starts its writer goroutine. A
// disabled config returns a recorder that discards everything.
func New(cfg Config, logger *slog.Logger) (research.TranscriptRecorder, func() error, error) {
	if !cfg.Enabled {
		return discard{}, func() error { return nil }, nil
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create transcript directory: %w", err)
	}

	l := &Logger{
		dir:    cfg.Dir,
		queue:  make(chan *research.Session, cfg.QueueSize),
		logger: logger,
	}
	l.wg.Add(1)
	go l.run()
	return l, l.Close, nil
}

// Record implements research.TranscriptRecorder.
func (l *Logger) Record(s *research.Session) {
	if s == nil {
		return
	}
	select {
	case l.queue <- s:
	default:
		l.logger.Warn("Transcript queue full, dropping session", "session_id", s.ID, "course_id", s.CourseID)
	}
}

// Close drains queued sessions and stops the writer.
func (l *Logger) Close() error {
	l.once.Do(func() { close(l.queue) })
	l.wg.Wait()
	return nil
}

func (l *Logger) run() {
	defer l.wg.Done()
	for s := range l.queue {
		if err := l.write(s); err != nil {
			l.logger.Error("Failed to write transcript", "session_id", s.ID, "error", err)
		}
	}
}

// Path returns the file a session is written to.
func (l *Logger) Path(courseID, sessionID string) string {
	return filepath.Join(l.dir, safeName.ReplaceAllString(courseID, "_"), safeName.ReplaceAllString(sessionID, "_")+".ndjson")
}

func (l *Logger) write(s *research.Session) error {
	path := l.Path(s.CourseID, s.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create course directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	seq := 0
	base := func(kind string) Line {
		seq++
		return Line{Timestamp: s.FinishedAt, SessionID: s.ID, CourseID: s.CourseID, Kind: kind, Seq: seq}
	}

	for i := range s.Messages {
		line := base("message")
		line.Message = &s.Messages[i]
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
	}
	for i := range s.ToolInvocations {
		line := base("search")
		line.Search = &s.ToolInvocations[i]
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("encode search: %w", err)
		}
	}

	summary := base("summary")
	summary.Rounds = s.Rounds
	summary.Provider = s.Provider
	summary.Usage = &s.Usage
	summary.DurationMS = s.FinishedAt.Sub(s.StartedAt).Milliseconds()
	summary.Error = s.Error
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

type discard struct{}

func (discard) Record(*research.Session) {}
