// internal/history/session.go
package history

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Entry roles written by the engine.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleAction    = "action"
	RoleResult    = "result"
	RoleState     = "state"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("history session closed")

// Entry is one line of the session log.
type Entry struct {
	// TS is milliseconds since the Unix epoch.
	TS      int64  `json:"ts"`
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Action  any    `json:"action,omitempty"`
}

// NewEntry stamps an entry with the current time.
func NewEntry(role, content string, action any) Entry {
	return Entry{TS: time.Now().UnixMilli(), Role: role, Content: content, Action: action}
}

// Recorder is anything that accepts history entries.
type Recorder interface {
	Append(e Entry) error
	Close() error
}

// Session appends entries to <dir>/<session-id>.jsonl. Every Append is
// followed by an fsync so a crash loses at most the entry being written.
// It is safe for concurrent use.
type Session struct {
	id     string
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	count  int
	closed bool
}

var _ Recorder = (*Session)(nil)

// Open creates the directory when needed and starts a new session file.
func Open(dir string, logger *zap.Logger) (*Session, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory %s: %w", dir, err)
	}
	id := uuid.NewString()
	path := filepath.Join(dir, id+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create history file %s: %w", path, err)
	}
	s := &Session{
		id:     id,
		path:   path,
		logger: logger.Named("history").With(zap.String("session_id", id)),
		file:   f,
		w:      bufio.NewWriter(f),
	}
	s.logger.Info("History session opened.", zap.String("path", path))
	return s, nil
}

// ID returns the session uuid.
func (s *Session) ID() string { return s.id }

// Path returns the file backing the session.
func (s *Session) Path() string { return s.path }

// Len returns the number of entries written so far.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Append writes e as one JSON line and syncs it to disk.
func (s *Session) Append(e Entry) error {
	if e.TS == 0 {
		e.TS = time.Now().UnixMilli()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("failed to write history entry: %w", err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write history entry: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush history: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync history: %w", err)
	}
	s.count++
	return nil
}

// Close flushes and closes the file. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	s.logger.Info("History session closed.", zap.Int("entries", s.count))
	return errors.Join(flushErr, closeErr)
}

// Read decodes every entry from a session log. A truncated final line, as
// left by a crash mid-write, is ignored.
func Read(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var pendingErr error
	for sc.Scan() {
		if pendingErr != nil {
			return entries, pendingErr
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			pendingErr = fmt.Errorf("malformed history line %d: %w", len(entries)+1, err)
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return entries, err
	}
	return entries, nil
}

// ReadFile opens path and decodes it with Read.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Nop discards entries.
type Nop struct{}

func (Nop) Append(Entry) error { return nil }
func (Nop) Close() error       { return nil }
