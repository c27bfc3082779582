package safety

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odoo-mcp/bridge/internal/debug"
)

// AuditEntry is one line of the append-only audit log, matching spec
// §4.5's exact field list plus two bookkeeping extras (ID, Reason) this
// implementation adds for its own diagnostics. Values are masked through
// internal/debug before they ever reach disk, the same helper the teacher
// uses to keep secrets out of verbose stderr output. Binary field contents
// are not detected or dropped: a binary value passed in Values is written
// like any other value.
type AuditEntry struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	SessionID  string                 `json:"session_id"`
	Tool       string                 `json:"tool"`
	Model      string                 `json:"model"`
	Operation  string                 `json:"operation"`
	Values     map[string]interface{} `json:"values,omitempty"`
	ResultID   interface{}            `json:"result_id,omitempty"`
	Success    bool                   `json:"success"`
	DurationMS int64                  `json:"duration_ms"`
	UID        int                    `json:"uid,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
}

// AuditWriter appends one JSON object per line to a log file. An empty path
// disables persistence; Record becomes a no-op but callers still get a
// verdict from the gate itself.
type AuditWriter struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditWriter opens (creating if needed) the audit log at path in append
// mode. path == "" yields a writer that drops every record.
func NewAuditWriter(path string) (*AuditWriter, error) {
	if path == "" {
		return &AuditWriter{}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &AuditWriter{file: f}, nil
}

// Record appends a minimal audit entry for a safety-gate verdict (allow or
// deny) that never reached the backend. reason is masked for anything that
// looks like a credential before being written.
func (w *AuditWriter) Record(sessionID, model, operation string, allowed bool, reason string) {
	w.write(AuditEntry{
		SessionID: sessionID,
		Model:     model,
		Operation: operation,
		Success:   allowed,
		Reason:    maskReason(reason),
	})
}

// RecordCall appends the full audit entry for a tool invocation that
// actually reached the backend (spec §4.5's exact shape: timestamp,
// session_id, tool, model, operation, values, result_id, success,
// duration_ms, uid). Binary field values must already be stripped from
// values by the caller before this is invoked.
func (w *AuditWriter) RecordCall(sessionID, tool, model, operation string, values map[string]interface{}, resultID interface{}, success bool, duration time.Duration, uid int) {
	w.write(AuditEntry{
		SessionID:  sessionID,
		Tool:       tool,
		Model:      model,
		Operation:  operation,
		Values:     maskValues(values),
		ResultID:   resultID,
		Success:    success,
		DurationMS: duration.Milliseconds(),
		UID:        uid,
	})
}

func (w *AuditWriter) write(entry AuditEntry) {
	if w.file == nil {
		return
	}
	entry.ID = uuid.NewString()
	entry.Timestamp = time.Now()

	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = w.file.Write(line)
}

// maskValues masks any string value whose key looks like a credential.
// Every other value, binary field contents included, is copied unchanged.
func maskValues(values map[string]interface{}) map[string]interface{} {
	if values == nil {
		return nil
	}
	masked := make(map[string]interface{}, len(values))
	for k, v := range values {
		if debug.IsSensitiveKey(k) {
			if s, ok := v.(string); ok {
				masked[k] = debug.MaskValue(s, 4)
				continue
			}
		}
		masked[k] = v
	}
	return masked
}

// maskReason masks reason text that looks like a credential value.
func maskReason(reason string) string {
	if reason == "" {
		return ""
	}
	if debug.IsSensitiveKey(reason) {
		return debug.MaskValue(reason, 4)
	}
	return reason
}

// Close flushes and closes the underlying file, if any.
func (w *AuditWriter) Close() error {
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}
