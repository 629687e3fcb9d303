// Package security provides request authentication, input validation and
// the audit trail of operator and agent actions.
package security

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	// Access events
	AuditAuthFailed AuditEventType = "AUTH_FAILED"

	// Agent control events
	AuditActivated     AuditEventType = "AGENT_ACTIVATED"
	AuditKillSwitch    AuditEventType = "KILL_SWITCH"
	AuditConfigChanged AuditEventType = "CONFIG_CHANGED"
	AuditAutoStarted   AuditEventType = "AUTO_STARTED"
	AuditAutoStopped   AuditEventType = "AUTO_STOPPED"

	// Signal decisions
	AuditSignalApproved AuditEventType = "SIGNAL_APPROVED"
	AuditSignalRejected AuditEventType = "SIGNAL_REJECTED"

	// Position events
	AuditPositionOpened AuditEventType = "POSITION_OPENED"
	AuditPositionClosed AuditEventType = "POSITION_CLOSED"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp  time.Time              `json:"timestamp"`
	EventType  AuditEventType         `json:"event_type"`
	Symbol     string                 `json:"symbol,omitempty"`
	SignalID   string                 `json:"signal_id,omitempty"`
	PositionID string                 `json:"position_id,omitempty"`
	OrderID    string                 `json:"order_id,omitempty"`
	Action     string                 `json:"action,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Success    bool                   `json:"success"`
	ErrorMsg   string                 `json:"error,omitempty"`
	RemoteAddr string                 `json:"remote_addr,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	writer    io.WriteCloser
	mu        sync.Mutex
	sessionID string
	now       func() time.Time
}

// AuditConfig holds audit logger configuration.
type AuditConfig struct {
	Path       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultAuditConfig returns the default audit configuration for path.
func DefaultAuditConfig(path string) AuditConfig {
	return AuditConfig{
		Path:       path,
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365,
		Compress:   true,
	}
}

type requestIDKey struct{}

// WithRequestID stores a request id for audit events logged under ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// NewAuditLogger creates a rotating audit logger.
func NewAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	return newAuditLogger(writer), nil
}

func newAuditLogger(w io.WriteCloser) *AuditLogger {
	return &AuditLogger{
		writer:    w,
		sessionID: generateSessionID(),
		now:       time.Now,
	}
}

// Log logs an audit event.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if al == nil {
		return nil
	}
	al.mu.Lock()
	defer al.mu.Unlock()

	event.Timestamp = al.now().UTC()
	event.SessionID = al.sessionID
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		event.RequestID = reqID
	}
	if event.ErrorMsg != "" {
		event.ErrorMsg = MaskSensitive(event.ErrorMsg)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}
	if _, err := al.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// LogAuthFailed logs a rejected API request.
func (al *AuditLogger) LogAuthFailed(ctx context.Context, remoteAddr, path string) error {
	return al.Log(ctx, AuditEvent{
		EventType:  AuditAuthFailed,
		Action:     path,
		RemoteAddr: remoteAddr,
		Success:    false,
	})
}

// LogConfigChanged logs an applied configuration patch.
func (al *AuditLogger) LogConfigChanged(ctx context.Context, changed map[string]interface{}) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditConfigChanged,
		Success:   true,
		Details:   changed,
	})
}

// LogSignalDecision logs a user approval or rejection.
func (al *AuditLogger) LogSignalDecision(ctx context.Context, signalID, symbol string, approved bool, errMsg string) error {
	eventType := AuditSignalRejected
	if approved {
		eventType = AuditSignalApproved
	}
	return al.Log(ctx, AuditEvent{
		EventType: eventType,
		SignalID:  signalID,
		Symbol:    symbol,
		Success:   errMsg == "",
		ErrorMsg:  errMsg,
	})
}

// LogPosition logs a position being opened or closed.
func (al *AuditLogger) LogPosition(ctx context.Context, opened bool, positionID, symbol, orderID string, qty int, price float64, reason string) error {
	eventType := AuditPositionClosed
	if opened {
		eventType = AuditPositionOpened
	}
	return al.Log(ctx, AuditEvent{
		EventType:  eventType,
		PositionID: positionID,
		Symbol:     symbol,
		OrderID:    orderID,
		Action:     reason,
		Success:    true,
		Details: map[string]interface{}{
			"quantity": qty,
			"price":    price,
		},
	})
}

// LogControl logs an activation, kill or scheduler transition.
func (al *AuditLogger) LogControl(ctx context.Context, eventType AuditEventType, details map[string]interface{}, err error) error {
	event := AuditEvent{EventType: eventType, Success: err == nil, Details: details}
	if err != nil {
		event.ErrorMsg = err.Error()
	}
	return al.Log(ctx, event)
}

// Close closes the audit logger.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}
	return al.writer.Close()
}

// generateSessionID generates a unique session ID.
func generateSessionID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
