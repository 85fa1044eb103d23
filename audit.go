package phoneauth

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

const (
	auditEventSendCode        = "otp.send"
	auditEventResendCode      = "otp.resend"
	auditEventConfirmCode     = "otp.confirm"
	auditEventBridge          = "bridge.establish"
	auditEventBridgeFallback  = "bridge.fallback_signup"
	auditEventPasswordSignIn  = "password.signin"
	auditEventPasswordSignUp  = "password.signup"
	auditEventWidgetReset     = "widget.reset"
	auditEventFlowClose       = "flow.close"
	auditEventSessionClear    = "bridge.session_clear"
)

// AuditEvent is one observable action in the authentication flow. Phone
// numbers are masked before they reach any sink.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Phone     string            `json:"phone,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the engine's dispatcher.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a channel, for tests and custom pipelines.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan AuditEvent, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// maskPhone keeps the plus and the last four digits; everything else becomes
// asterisks. Audit records must not be a phone-number inventory.
func maskPhone(phone string) string {
	if len(phone) <= 5 {
		return phone
	}
	masked := []byte(phone)
	for i := 1; i < len(masked)-4; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
