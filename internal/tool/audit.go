package tool

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditStartRecord is written before a tool body runs.
type AuditStartRecord struct {
	Kind      string         `json:"kind"`
	ID        string         `json:"id"`
	Timestamp int64          `json:"ts"`
	Session   string         `json:"session"`
	Message   string         `json:"msg"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	Risk      RiskLevel      `json:"risk"`
}

// AuditEndRecord is written after a tool body returns.
type AuditEndRecord struct {
	Kind       string         `json:"kind"`
	ID         string         `json:"id"`
	Timestamp  int64          `json:"ts"`
	DurationMs int64          `json:"duration_ms"`
	Outcome    string         `json:"outcome"` // "Success" or "Failure"
	Metadata   map[string]any `json:"metadata,omitempty"`
	ErrorKind  string         `json:"error,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// AuditSink appends newline-delimited JSON audit records. It is
// append-only and flushed at every record boundary, matching the
// teacher's pkg/harness/logger.go JSONL convention generalized to the
// start/end shape spec §6 defines.
type AuditSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditSink opens (creating if needed) the audit log at path.
func NewAuditSink(path string) (*AuditSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &AuditSink{file: f}, nil
}

// NewDiscardAuditSink returns a sink that drops every record, used when no
// audit path is configured.
func NewDiscardAuditSink() *AuditSink {
	return &AuditSink{file: nil}
}

func (s *AuditSink) writeLine(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf = append(buf, '\n')
	if _, err := s.file.Write(buf); err != nil {
		return err
	}
	return s.file.Sync()
}

// Start writes a start record and returns the id to pair with End.
func (s *AuditSink) Start(session, message, toolID string, args map[string]any, risk RiskLevel) (string, error) {
	id := uuid.NewString()
	rec := AuditStartRecord{
		Kind:      "start",
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Session:   session,
		Message:   message,
		Tool:      toolID,
		Args:      args,
		Risk:      risk,
	}
	return id, s.writeLine(rec)
}

// EndSuccess writes a matching success end record.
func (s *AuditSink) EndSuccess(id string, duration time.Duration, metadata map[string]any) error {
	return s.writeLine(AuditEndRecord{
		Kind:       "end",
		ID:         id,
		Timestamp:  time.Now().UnixMilli(),
		DurationMs: duration.Milliseconds(),
		Outcome:    "Success",
		Metadata:   metadata,
	})
}

// EndFailure writes a matching failure end record.
func (s *AuditSink) EndFailure(id string, duration time.Duration, errorKind, message string) error {
	return s.writeLine(AuditEndRecord{
		Kind:       "end",
		ID:         id,
		Timestamp:  time.Now().UnixMilli(),
		DurationMs: duration.Milliseconds(),
		Outcome:    "Failure",
		ErrorKind:  errorKind,
		Message:    message,
	})
}

// Close releases the underlying file handle, if any.
func (s *AuditSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
