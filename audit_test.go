package phoneauth

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func collectEvents(t *testing.T, sink *ChannelSink, want int) []AuditEvent {
	t.Helper()

	events := make([]AuditEvent, 0, want)
	timeout := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case event := <-sink.Events():
			events = append(events, event)
		case <-timeout:
			t.Fatalf("timed out waiting for %d events, got %d", want, len(events))
		}
	}
	return events
}

func TestAuditEventsEmitted(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	sink := NewChannelSink(32)
	ctx := context.Background()
	engine, _ := newTestEngine(t, rdb, func(b *Builder) {
		cfg := testConfig()
		cfg.Audit.Enabled = true
		b.WithConfig(cfg).WithAuditSink(sink)
	})

	handle, err := engine.SendCode(ctx, testCountryCode, testLocalNumber)
	if err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	if _, err := engine.ConfirmCode(ctx, handle, testCode); err != nil {
		t.Fatalf("ConfirmCode failed: %v", err)
	}

	events := collectEvents(t, sink, 2)
	if events[0].EventType != "otp.send" || !events[0].Success {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].EventType != "otp.confirm" || !events[1].Success {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
}

func TestAuditWidgetResetOnBack(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	sink := NewChannelSink(32)
	ctx := context.Background()
	engine, _ := newTestEngine(t, rdb, func(b *Builder) {
		cfg := testConfig()
		cfg.Audit.Enabled = true
		b.WithConfig(cfg).WithAuditSink(sink)
	})

	flow := engine.NewFlow()
	flow.SetPhone(testCountryCode, testLocalNumber)
	if st := flow.SendCode(ctx); !st.OK {
		t.Fatalf("SendCode failed: %v", st.Err)
	}
	if st := flow.Back(ctx); !st.OK {
		t.Fatalf("Back failed: %v", st.Err)
	}

	events := collectEvents(t, sink, 2)
	if events[0].EventType != "otp.send" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].EventType != "widget.reset" || !events[1].Success {
		t.Fatalf("expected a widget.reset event, got %+v", events[1])
	}
}

func TestAuditMasksPhoneNumbers(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	sink := NewChannelSink(32)
	engine, _ := newTestEngine(t, rdb, func(b *Builder) {
		cfg := testConfig()
		cfg.Audit.Enabled = true
		b.WithConfig(cfg).WithAuditSink(sink)
	})

	if _, err := engine.SendCode(context.Background(), testCountryCode, testLocalNumber); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}

	event := collectEvents(t, sink, 1)[0]
	if strings.Contains(event.Phone, testLocalNumber[:6]) {
		t.Fatalf("event leaks the phone number: %q", event.Phone)
	}
	if !strings.HasPrefix(event.Phone, "+") || !strings.HasSuffix(event.Phone, testPhone[len(testPhone)-4:]) {
		t.Fatalf("unexpected mask shape: %q", event.Phone)
	}
}

func TestAuditCarriesClientIP(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	sink := NewChannelSink(32)
	engine, _ := newTestEngine(t, rdb, func(b *Builder) {
		cfg := testConfig()
		cfg.Audit.Enabled = true
		b.WithConfig(cfg).WithAuditSink(sink)
	})

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	if _, err := engine.SendCode(ctx, testCountryCode, testLocalNumber); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}

	event := collectEvents(t, sink, 1)[0]
	if event.IP != "203.0.113.9" {
		t.Fatalf("expected client IP on event, got %q", event.IP)
	}
}

func TestMaskPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+911234567890", "+********7890"},
		{"+15550001111", "+*******1111"},
		{"+1234", "+1234"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := maskPhone(tc.in); got != tc.want {
			t.Fatalf("maskPhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now(),
		EventType: "otp.send",
		Phone:     maskPhone(testPhone),
		Success:   true,
	})
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now(),
		EventType: "otp.confirm",
		Success:   false,
		Error:     "incorrect code",
	})

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		var event AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines+1, err)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 JSON lines, got %d", lines)
	}
}

func TestAuditDispatcherDropsUnderBackpressure(t *testing.T) {
	blocker := make(chan struct{})
	sink := blockingSink{release: blocker}

	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// Saturate the worker and the one-slot buffer, then overflow.
	for i := 0; i < 8; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "otp.send"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events under backpressure")
	}

	close(blocker)
	d.Close()
}

type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Emit(context.Context, AuditEvent) {
	<-s.release
}
