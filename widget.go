package phoneauth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChallengeWidget is one mounted anti-automation widget. At most one exists
// per widgetManager at a time. A widget resolves exactly once: with a solved
// token, an expiry, a host error, or a release. Callbacks arriving after
// release are discarded, never delivered into a torn-down flow.
type ChallengeWidget struct {
	id            string
	providerID    string
	renderTimeout time.Duration

	mu    sync.Mutex
	live  bool
	done  bool
	token string
	err   error
	ready chan struct{}
}

// ID identifies this mount attempt, not the host-side widget.
func (w *ChallengeWidget) ID() string {
	return w.id
}

// Token blocks until the widget is solved, fails, or the wait is bounded by
// ctx or the configured render timeout.
func (w *ChallengeWidget) Token(ctx context.Context) (string, error) {
	var timeout <-chan time.Time
	if w.renderTimeout > 0 {
		timer := time.NewTimer(w.renderTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-w.ready:
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.err != nil {
			return "", w.err
		}
		return w.token, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrWidgetInit, ctx.Err())
	case <-timeout:
		return "", fmt.Errorf("%w: render timed out", ErrWidgetInit)
	}
}

func (w *ChallengeWidget) deliver(token string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.live || w.done {
		return
	}
	w.done = true
	w.token = token
	w.err = err
	close(w.ready)
}

// resolved reports whether the widget already delivered its outcome. A
// resolved widget's token is spent and must not back another send.
func (w *ChallengeWidget) resolved() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// release flips the liveness flag so late host callbacks become no-ops, and
// wakes any Token waiter with an error.
func (w *ChallengeWidget) release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.live = false
	if !w.done {
		w.done = true
		w.err = fmt.Errorf("%w: widget released", ErrWidgetInit)
		close(w.ready)
	}
}

// widgetManager owns the process-wide widget singleton: it guarantees a
// single mounted widget, wires host callbacks through the liveness guard, and
// disposes host-side state on reset so the next mount starts clean. Reusing a
// stale widget is undefined behavior in the host, so reset always recreates.
type widgetManager struct {
	host ChallengeHost
	cfg  ChallengeConfig

	mu      sync.Mutex
	current *ChallengeWidget
}

func newWidgetManager(host ChallengeHost, cfg ChallengeConfig) *widgetManager {
	return &widgetManager{host: host, cfg: cfg}
}

// Acquire returns the mounted widget, mounting one if necessary. When the
// configuration does not require a challenge it returns (nil, nil) and the
// send path proceeds token-less. A widget that already delivered its outcome
// is disposed and replaced, so a spent token never backs a second send.
func (m *widgetManager) Acquire(ctx context.Context) (*ChallengeWidget, error) {
	if !m.cfg.Required {
		return nil, nil
	}
	if m.host == nil {
		return nil, fmt.Errorf("%w: no challenge host configured", ErrWidgetInit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.current; cur != nil {
		if !cur.resolved() {
			return cur, nil
		}
		m.current = nil
		cur.release()
		if cur.providerID != "" {
			_ = m.host.Reset(cur.providerID)
		}
	}

	w := &ChallengeWidget{
		id:            uuid.NewString(),
		renderTimeout: m.cfg.RenderTimeout,
		live:          true,
		ready:         make(chan struct{}),
	}

	providerID, err := m.host.Render(ctx, m.cfg.HostElementID, ChallengeCallbacks{
		OnSolved:  func(token string) { w.deliver(token, nil) },
		OnExpired: func() { w.deliver("", ErrChallengeExpired) },
		OnError: func(cause error) {
			w.deliver("", fmt.Errorf("%w: %v", ErrChallengeFailed, cause))
		},
	})
	if err != nil {
		w.release()
		return nil, fmt.Errorf("%w: %v", ErrWidgetInit, err)
	}

	w.providerID = providerID
	m.current = w
	return w, nil
}

// Reset releases the mounted widget and clears host-side state. Safe to call
// when no widget exists.
func (m *widgetManager) Reset() error {
	m.mu.Lock()
	w := m.current
	m.current = nil
	m.mu.Unlock()

	if w == nil {
		return nil
	}
	w.release()

	if w.providerID != "" {
		if err := m.host.Reset(w.providerID); err != nil {
			return fmt.Errorf("%w: host reset: %v", ErrWidgetInit, err)
		}
	}
	return nil
}

// Mounted reports whether a widget is currently held.
func (m *widgetManager) Mounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}
