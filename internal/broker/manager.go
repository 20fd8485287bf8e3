package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dharsanguruparan/docvault/internal/logging"
	"github.com/dharsanguruparan/docvault/internal/retry"
)

const (
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = 5 * time.Second
)

// Manager opens broker sessions for one component. Every session it opens has
// the component's queues declared.
type Manager struct {
	url      string
	queues   []string
	dial     Dialer
	attempts int
	backoff  time.Duration
	prefetch int
	sleep    retry.SleepFunc
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the AMQP dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dial = d }
}

// WithRetry sets the attempt budget and the fixed wait between attempts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(m *Manager) {
		if attempts > 0 {
			m.attempts = attempts
		}
		if backoff >= 0 {
			m.backoff = backoff
		}
	}
}

// WithPrefetch sets the channel QoS prefetch count. Zero leaves it unlimited.
func WithPrefetch(n int) Option {
	return func(m *Manager) { m.prefetch = n }
}

// WithSleep replaces the wait used between attempts.
func WithSleep(fn retry.SleepFunc) Option {
	return func(m *Manager) { m.sleep = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager builds a Manager for the broker at url owning the given queues.
func NewManager(url string, queues []string, opts ...Option) *Manager {
	m := &Manager{
		url:      url,
		queues:   append([]string(nil), queues...),
		dial:     Dial,
		attempts: DefaultConnectAttempts,
		backoff:  DefaultConnectBackoff,
		sleep:    retry.Sleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.Component(m.logger, "broker")
	return m
}

// Connect dials the broker, opens a channel and declares the queues. Failed
// attempts are retried after a fixed backoff; once the budget is spent the
// returned error wraps ErrConnectFailed and the caller must not start
// consuming.
func (m *Manager) Connect(ctx context.Context) (*Session, error) {
	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		session, err := m.open()
		if err == nil {
			m.logger.Info("connected to broker", slog.Int("attempt", attempt), slog.Any("queues", m.queues))
			return session, nil
		}
		lastErr = err
		m.logger.Error("broker connection failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", m.attempts),
			slog.Duration("retry_in", m.backoff),
			slog.Any("error", err))
		if attempt == m.attempts {
			break
		}
		if err := m.sleep(ctx, m.backoff); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrConnectFailed, m.attempts, lastErr)
}

// Attach borrows a connection owned by someone else: no dial, a fresh
// channel, queues redeclared. Closing the returned session leaves the
// connection open.
func (m *Manager) Attach(conn Connection) (*Session, error) {
	session, err := m.session(conn, false)
	if err != nil {
		return nil, err
	}
	m.logger.Info("reused broker connection", slog.Any("queues", m.queues))
	return session, nil
}

func (m *Manager) open() (*Session, error) {
	conn, err := m.dial(m.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	session, err := m.session(conn, true)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return session, nil
}

func (m *Manager) session(conn Connection, owned bool) (*Session, error) {
	if conn == nil || conn.IsClosed() {
		return nil, ErrConnectionClosed
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if m.prefetch > 0 {
		if err := ch.Qos(m.prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}
	for _, q := range m.queues {
		if err := declareQueue(ch, q); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	return &Session{conn: conn, ch: ch, owned: owned}, nil
}

// Session is a connection plus one channel. It implements ChannelProvider.
type Session struct {
	conn  Connection
	ch    Channel
	owned bool
	once  sync.Once
	err   error
}

// Channel returns the session's channel.
func (s *Session) Channel() Channel {
	return s.ch
}

// Connection returns the underlying connection so other components can
// attach their own channels to it.
func (s *Session) Connection() Connection {
	return s.conn
}

// Owned reports whether closing the session also closes the connection.
func (s *Session) Owned() bool {
	return s.owned
}

// Close closes the channel, and the connection when the session owns it.
// Calling Close more than once is safe.
func (s *Session) Close() error {
	s.once.Do(func() {
		var errs []error
		if err := s.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
		if s.owned && !s.conn.IsClosed() {
			if err := s.conn.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close connection: %w", err))
			}
		}
		s.err = errors.Join(errs...)
	})
	return s.err
}
