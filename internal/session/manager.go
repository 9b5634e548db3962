package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/yegors/telegate/internal/domain"
	"github.com/yegors/telegate/pkg/logger"
)

// Dialer opens authenticated connections to the messaging service
type Dialer interface {
	Dial(ctx context.Context, cred Credential) (domain.Conn, error)
}

// Config tunes connection management
type Config struct {
	MaxAttempts       int           // dial attempts per connect cycle
	BackoffBase       time.Duration // delay before the second attempt, doubled after each failure
	BackoffMax        time.Duration // upper bound of a single backoff delay
	KeepaliveInterval time.Duration // 0 disables keepalive pings
	CallTimeout       time.Duration // bound for one locked call, 0 means unbounded
}

// DefaultConfig returns the settings used when none are configured
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       5,
		BackoffBase:       500 * time.Millisecond,
		BackoffMax:        30 * time.Second,
		KeepaliveInterval: time.Minute,
		CallTimeout:       30 * time.Second,
	}
}

// Manager owns the single connection of the process. Every use of the
// connection goes through Do, which holds a FIFO lock around
// EnsureConnected and the caller's function, so calls never interleave.
type Manager struct {
	dialer Dialer
	cred   Credential
	config Config
	logger *logger.Logger

	lock *semaphore.Weighted

	mu             sync.RWMutex
	status         Status
	conn           domain.Conn
	lastErr        error
	connectedSince time.Time
	everConnected  bool
	reconnects     int
	listeners      []func(Snapshot)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager in the Disconnected state. No connection is
// opened until Connect or the first Do.
func NewManager(dialer Dialer, cred Credential, config Config, log *logger.Logger) *Manager {
	defaults := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = defaults.BackoffBase
	}
	if config.BackoffMax < config.BackoffBase {
		config.BackoffMax = config.BackoffBase
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		dialer: dialer,
		cred:   cred,
		config: config,
		logger: log.Named("session").With(logger.String("fingerprint", cred.Fingerprint())),
		lock:   semaphore.NewWeighted(1),
		status: StatusDisconnected,
		ctx:    ctx,
		cancel: cancel,
	}

	if config.KeepaliveInterval > 0 {
		m.wg.Add(1)
		go m.keepaliveLoop()
	}

	return m
}

// OnStatusChange registers fn to be called after every status transition.
// fn runs on the goroutine that caused the transition and must not call Do.
func (m *Manager) OnStatusChange(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Status returns the current status without waiting for the lock
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Snapshot returns the current state without waiting for the lock
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		Status:      m.status,
		Fingerprint: m.cred.Fingerprint(),
		Reconnects:  m.reconnects,
	}
	if m.status == StatusConnected {
		since := m.connectedSince
		snapshot.ConnectedSince = &since
	}
	if m.lastErr != nil {
		snapshot.LastError = m.lastErr.Error()
		snapshot.LastErrorKind = string(domain.KindOf(m.lastErr))
	}
	return snapshot
}

// Connect (re)establishes the connection. This is the operator path: it is
// the only way out of a Failed state caused by an auth error.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.lock.Release(1)

	m.closeConnLocked()
	return m.connectLocked(ctx)
}

// EnsureConnected makes sure a usable connection exists, waiting for the
// lock like any other call.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	return m.Do(ctx, func(context.Context, domain.Conn) error { return nil })
}

// Do runs fn against the connection while holding the session lock.
//
// If ctx ends before the lock is acquired, fn never runs. Once the lock is
// held, fn runs on a context detached from ctx (bounded by CallTimeout) so
// an abandoned request cannot cut an upstream call in half; Do then returns
// early and the result of fn is discarded.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context, conn domain.Conn) error) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}

	result := make(chan error, 1)
	go func() {
		defer m.lock.Release(1)

		callCtx := context.WithoutCancel(ctx)
		if m.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, m.config.CallTimeout)
			defer cancel()
		}

		conn, err := m.ensureConnectedLocked(callCtx)
		if err != nil {
			result <- err
			return
		}
		result <- fn(callCtx, conn)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return domain.ConnectionError(ctx.Err(), "session: request abandoned while the call was in flight")
	}
}

func (m *Manager) acquire(ctx context.Context) error {
	if err := m.lock.Acquire(ctx, 1); err != nil {
		return domain.ConnectionError(err, "session: request abandoned while waiting for the session")
	}
	// Acquire may succeed on an already finished context
	if err := ctx.Err(); err != nil {
		m.lock.Release(1)
		return domain.ConnectionError(err, "session: request abandoned while waiting for the session")
	}
	return nil
}

// ensureConnectedLocked must be called with the lock held
func (m *Manager) ensureConnectedLocked(ctx context.Context) (domain.Conn, error) {
	m.mu.RLock()
	status, conn, lastErr := m.status, m.conn, m.lastErr
	m.mu.RUnlock()

	if status == StatusConnected {
		if conn != nil && !closed(conn.Done()) {
			return conn, nil
		}
		m.logger.Warn("Connection found closed, reconnecting")
	} else if domain.IsKind(lastErr, domain.KindAuth) {
		return nil, lastErr
	}

	m.closeConnLocked()
	if err := m.connectLocked(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn, nil
}

// connectLocked runs one connect cycle: up to MaxAttempts dials with
// exponential backoff. Auth rejections end the cycle immediately.
func (m *Manager) connectLocked(ctx context.Context) error {
	if err := m.cred.Validate(); err != nil {
		m.logger.Error("Credential rejected before dialing", logger.Error(err))
		m.setFailed(err)
		return err
	}

	m.setStatus(StatusConnecting)

	var lastErr error
	attempts := 0
dial:
	for attempt := 1; attempt <= m.config.MaxAttempts; attempt++ {
		attempts = attempt
		start := time.Now()
		conn, err := m.dialer.Dial(ctx, m.cred)
		if err == nil {
			m.logger.Info("Session connected",
				logger.Int("attempt", attempt),
				logger.Duration("duration", time.Since(start)))
			m.setConnected(conn)
			return nil
		}
		lastErr = err

		if domain.IsKind(err, domain.KindAuth) {
			m.logger.Error("Session credential rejected", logger.Error(err))
			m.setFailed(err)
			return err
		}

		if attempt == m.config.MaxAttempts {
			break
		}

		delay := m.backoff(attempt)
		m.logger.Warn("Connect attempt failed, retrying",
			logger.Error(err),
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", m.config.MaxAttempts),
			logger.Duration("backoff", delay))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			lastErr = ctx.Err()
			break dial
		}
	}

	failure := domain.ConnectionError(lastErr, "session: could not connect after %d attempt(s)", attempts)
	m.logger.Error("Session connect failed", logger.Error(lastErr), logger.Int("attempts", attempts))
	m.setFailed(failure)
	return failure
}

func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.config.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.config.BackoffMax {
			return m.config.BackoffMax
		}
	}
	return delay
}

// Disconnect closes the connection. Idempotent. It waits briefly for an
// in-flight call to finish, then closes regardless.
func (m *Manager) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.lock.Acquire(ctx, 1); err == nil {
		defer m.lock.Release(1)
	} else {
		m.logger.Warn("Disconnecting while a call is still in flight")
	}

	m.mu.Lock()
	conn := m.conn
	next := StatusDisconnected
	// a rejected credential stays Failed until an explicit Connect
	if m.status == StatusFailed && domain.IsKind(m.lastErr, domain.KindAuth) {
		next = StatusFailed
	}
	changed := m.status != next
	m.conn = nil
	m.status = next
	m.connectedSince = time.Time{}
	m.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
		m.logger.Info("Session disconnected")
	}
	if changed {
		m.notify()
	}
	return err
}

// Close disconnects and stops background work. The manager cannot be used
// afterwards.
func (m *Manager) Close() error {
	m.cancel()
	err := m.Disconnect()
	m.wg.Wait()
	return err
}

func (m *Manager) closeConnLocked() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Debug("Closing stale connection", logger.Error(err))
		}
	}
}

func (m *Manager) setStatus(status Status) {
	m.mu.Lock()
	changed := m.status != status
	m.status = status
	m.mu.Unlock()
	if changed {
		m.notify()
	}
}

func (m *Manager) setFailed(err error) {
	m.mu.Lock()
	m.status = StatusFailed
	m.lastErr = err
	m.connectedSince = time.Time{}
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) setConnected(conn domain.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.status = StatusConnected
	m.lastErr = nil
	m.connectedSince = time.Now()
	if m.everConnected {
		m.reconnects++
	}
	m.everConnected = true
	m.mu.Unlock()

	if m.ctx.Err() == nil {
		m.wg.Add(1)
		go m.watch(conn)
	}
	m.notify()
}

func (m *Manager) notify() {
	m.mu.RLock()
	snapshot := m.snapshotLocked()
	listeners := append([]func(Snapshot){}, m.listeners...)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(snapshot)
	}
}

// watch reacts to a connection terminating on its own: Connected moves to
// Connecting and a reconnect is queued behind the lock.
func (m *Manager) watch(conn domain.Conn) {
	defer m.wg.Done()

	select {
	case <-m.ctx.Done():
		return
	case <-conn.Done():
	}

	m.mu.Lock()
	dropped := m.conn == conn && m.status == StatusConnected
	if dropped {
		m.status = StatusConnecting
	}
	m.mu.Unlock()
	if !dropped {
		return
	}

	m.logger.Warn("Connection dropped, reconnecting")
	m.notify()
	m.recover(conn)
}

// recover reconnects after a drop of conn, unless someone else already did
func (m *Manager) recover(conn domain.Conn) {
	if err := m.lock.Acquire(m.ctx, 1); err != nil {
		return
	}
	defer m.lock.Release(1)

	m.mu.RLock()
	stale := m.conn == conn && m.status == StatusConnecting
	m.mu.RUnlock()
	if !stale {
		return
	}

	m.closeConnLocked()
	if err := m.connectLocked(m.ctx); err != nil {
		m.logger.Warn("Reconnect after drop failed; next call will retry", logger.Error(err))
	}
}

func (m *Manager) keepaliveLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.keepalive()
		}
	}
}

// keepalive pings an idle connection. A busy lock means traffic is flowing,
// so the tick is skipped.
func (m *Manager) keepalive() {
	if !m.lock.TryAcquire(1) {
		return
	}

	m.mu.RLock()
	status, conn := m.status, m.conn
	m.mu.RUnlock()
	if status != StatusConnected || conn == nil {
		m.lock.Release(1)
		return
	}

	timeout := m.config.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(m.ctx, timeout)
	err := conn.Ping(ctx)
	cancel()
	if err == nil {
		m.lock.Release(1)
		return
	}

	m.logger.Warn("Keepalive failed", logger.Error(err))
	m.mu.Lock()
	if m.conn == conn && m.status == StatusConnected {
		m.status = StatusConnecting
	}
	m.mu.Unlock()
	m.notify()

	// recover takes the lock itself
	m.lock.Release(1)
	m.recover(conn)
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
