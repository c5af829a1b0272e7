package backend

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mode controls session lifetime across runs.
type Mode string

const (
	// ModeEphemeral sessions live for exactly one run.
	ModeEphemeral Mode = "ephemeral"
	// ModePersistent sessions are reused across runs until Shutdown.
	ModePersistent Mode = "persistent"
)

// launcher starts managed resources for one backend kind.
type launcher interface {
	// launch may return a non-nil resource together with an error when
	// something was created before the failure; the caller tears it down.
	launch(ctx context.Context, desc Descriptor, port int) (resource, error)
}

// resource is a managed backend process.
type resource interface {
	id() string
	stop(ctx context.Context) error
	alive(ctx context.Context) (bool, error)
}

// prober answers whether an endpoint is ready.
type prober interface {
	probe(ctx context.Context, endpoint string) error
}

// Options tune manager construction.
type Options struct {
	Clock          clock.Clock
	Log            *zap.SugaredLogger
	StartupTimeout time.Duration // readiness deadline, default 60s
	ProbeInterval  time.Duration // initial backoff step, default 500ms
}

// Manager owns at most one Session at a time and its full lifecycle.
type Manager struct {
	desc     Descriptor
	clk      clock.Clock
	log      *zap.SugaredLogger
	timeout  time.Duration
	interval time.Duration

	launcher launcher
	probe    prober

	mu   sync.Mutex
	sess *Session
}

// NewManager builds a Manager for a descriptor.
func NewManager(desc Descriptor, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = 60 * time.Second
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 500 * time.Millisecond
	}

	m := &Manager{
		desc:     desc,
		clk:      opts.Clock,
		log:      opts.Log.Named("backend"),
		timeout:  opts.StartupTimeout,
		interval: opts.ProbeInterval,
		probe:    newHTTPProber(),
	}
	switch desc.Kind {
	case KindDocker:
		m.launcher = &dockerLauncher{log: m.log}
	case KindK8s:
		m.launcher = &kubeLauncher{log: m.log}
	}
	return m
}

// Current returns the managed session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Acquire returns a usable session checked out as IN_USE. Persistent mode
// reuses a live session after a health check; ephemeral mode always
// produces a fresh one, retiring any survivor first.
func (m *Manager) Acquire(ctx context.Context, mode Mode) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess != nil && !m.sess.State().Terminal() {
		if mode == ModePersistent {
			return m.reuseLocked(ctx)
		}
		if err := m.teardownLocked(m.sess); err != nil {
			m.log.Warnw("retiring previous session failed", "session", m.sess.ID, "error", err)
		}
		m.sess = nil
	}

	sess, err := m.startLocked(ctx)
	if err != nil {
		return nil, err
	}
	m.sess = sess
	if err := sess.transition(StateInUse); err != nil {
		return nil, err
	}
	return sess, nil
}

// Release returns the session to the pool (persistent) or retires it
// unconditionally (ephemeral), even after a failed run.
func (m *Manager) Release(mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil {
		return nil
	}
	if mode == ModePersistent {
		if m.sess.State() == StateInUse {
			return m.sess.transition(StateReady)
		}
		return nil
	}

	err := m.teardownLocked(m.sess)
	m.sess = nil
	return err
}

// Shutdown retires any live session. Idempotent; persistent loops call it
// once at exit and interrupt paths rely on it to reach STOPPED.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil {
		return nil
	}
	err := m.teardownLocked(m.sess)
	m.sess = nil
	return err
}

// HealthCheck probes the session's resolved endpoint once.
func (m *Manager) HealthCheck(ctx context.Context, sess *Session) error {
	if sess == nil || sess.State().Terminal() {
		return ErrSessionClosed
	}
	switch sess.Descriptor.Kind {
	case KindDryRun, KindLocal:
		return nil
	}
	return m.probe.probe(ctx, sess.Endpoint())
}

// checkReusable gates persistent reuse: the managed resource must still be
// running (docker inspect / kubectl get) and the endpoint must answer. The
// endpoint probe alone cannot tell a restarted container from the old one.
func (m *Manager) checkReusable(ctx context.Context, sess *Session) error {
	if res := sess.resource(); res != nil {
		ok, err := res.alive(ctx)
		if err != nil {
			return fmt.Errorf("resource %s: %v", res.id(), err)
		}
		if !ok {
			return fmt.Errorf("resource %s is gone", res.id())
		}
	}
	return m.HealthCheck(ctx, sess)
}

func (m *Manager) reuseLocked(ctx context.Context) (*Session, error) {
	sess := m.sess
	if sess.State() == StateInUse {
		return sess, nil
	}
	if err := m.checkReusable(ctx, sess); err != nil {
		m.log.Warnw("session failed health check, retiring",
			"session", sess.ID, "error", err)
		sess.transition(StateFailed)
		if res := sess.resource(); res != nil {
			if stopErr := m.stopDetached(res); stopErr != nil {
				m.log.Warnw("stopping unhealthy session failed", "error", stopErr)
			}
		}
		m.sess = nil
		return nil, fmt.Errorf("%w: session %s failed health check: %v", ErrUnavailable, sess.ID, err)
	}
	if err := sess.transition(StateInUse); err != nil {
		return nil, err
	}
	m.log.Debugw("session reused", "session", sess.ID)
	return sess, nil
}

func (m *Manager) startLocked(ctx context.Context) (*Session, error) {
	sess := &Session{ID: uuid.NewString(), Descriptor: m.desc}
	if err := sess.transition(StateStarting); err != nil {
		return nil, err
	}

	switch m.desc.Kind {
	case KindDryRun:
		// Nothing to resolve; strategies run against a logging driver.

	case KindLocal:
		sess.setResolved(m.desc.Endpoint, 0)

	case KindInPod:
		sess.setResolved(m.externalEndpoint(DefaultSidecarEndpoint), 0)

	case KindDocker, KindK8s:
		if m.desc.LaunchManaged {
			if err := m.launchManaged(ctx, sess); err != nil {
				return nil, err
			}
			break
		}
		endpoint, err := m.unmanagedEndpoint()
		if err != nil {
			sess.transition(StateFailed)
			return nil, err
		}
		if err := m.probe.probe(ctx, endpoint); err != nil {
			sess.transition(StateFailed)
			return nil, fmt.Errorf("%w: %s unreachable: %v", ErrUnavailable, endpoint, err)
		}
		sess.setResolved(endpoint, 0)
	}

	if err := sess.transition(StateReady); err != nil {
		return nil, err
	}
	m.log.Infow("session ready",
		"session", sess.ID, "kind", string(m.desc.Kind), "endpoint", sess.Endpoint())
	return sess, nil
}

// unmanagedEndpoint resolves the external endpoint for docker/k8s backends
// that attach to something already running.
func (m *Manager) unmanagedEndpoint() (string, error) {
	if m.desc.Endpoint != "" {
		return m.desc.Endpoint, nil
	}
	switch m.desc.Kind {
	case KindDocker:
		return DefaultDockerEndpoint, nil
	case KindK8s:
		if url := os.Getenv(EnvTestRunnerURL); url != "" {
			return url, nil
		}
		return "", fmt.Errorf("%w: %s is not set and no browser URL configured",
			ErrUnavailable, EnvTestRunnerURL)
	}
	return "", fmt.Errorf("%w: kind %s has no external endpoint", ErrUnavailable, m.desc.Kind)
}

func (m *Manager) externalEndpoint(fallback string) string {
	if m.desc.Endpoint != "" {
		return m.desc.Endpoint
	}
	if url := os.Getenv(EnvTestRunnerURL); url != "" {
		return url
	}
	return fallback
}

func (m *Manager) launchManaged(ctx context.Context, sess *Session) error {
	port, err := freePort()
	if err != nil {
		sess.transition(StateFailed)
		return fmt.Errorf("%w: no free port: %v", ErrUnavailable, err)
	}
	sess.setResolved(fmt.Sprintf("ws://127.0.0.1:%d", port), port)

	res, err := m.launcher.launch(ctx, m.desc, port)
	if res != nil {
		sess.setResource(res)
	}
	if err != nil {
		m.abortStart(sess, res, ctx.Err() != nil)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := m.awaitReady(ctx, sess.Endpoint()); err != nil {
		// A partial resource never outlives a failed start.
		m.abortStart(sess, res, ctx.Err() != nil)
		return err
	}
	return nil
}

// abortStart unwinds a session that failed during STARTING. Interrupted
// starts walk STOPPING to STOPPED; genuine failures land in FAILED.
func (m *Manager) abortStart(sess *Session, res resource, interrupted bool) {
	if res != nil {
		if err := m.stopDetached(res); err != nil {
			m.log.Warnw("stopping partial session failed", "resource", res.id(), "error", err)
		}
	}
	if interrupted && sess.State() == StateStarting {
		if sess.transition(StateStopping) == nil {
			sess.transition(StateStopped)
			return
		}
	}
	sess.transition(StateFailed)
}

// awaitReady polls the readiness endpoint with exponential backoff until it
// answers or the startup deadline passes.
func (m *Manager) awaitReady(ctx context.Context, endpoint string) error {
	deadline := m.clk.Now().Add(m.timeout)
	delay := m.interval

	for {
		if err := m.probe.probe(ctx, endpoint); err == nil {
			return nil
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		remaining := deadline.Sub(m.clk.Now())
		if remaining <= 0 {
			return fmt.Errorf("%w: %s not ready after %s", ErrSessionTimeout, endpoint, m.timeout)
		}
		sleep := delay
		if sleep > remaining {
			sleep = remaining
		}

		timer := m.clk.Timer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if delay < 8*time.Second {
			delay *= 2
		}
	}
}

// teardownLocked drives a session to STOPPED. The resource stop runs on a
// detached context so a canceled run cannot strand backend processes.
func (m *Manager) teardownLocked(sess *Session) error {
	switch sess.State() {
	case StateStopped:
		return nil
	case StateFailed:
		if res := sess.resource(); res != nil {
			return m.stopDetached(res)
		}
		return nil
	}

	if err := sess.transition(StateStopping); err != nil {
		return err
	}
	var stopErr error
	if res := sess.resource(); res != nil {
		stopErr = m.stopDetached(res)
	}
	if err := sess.transition(StateStopped); err != nil {
		return err
	}
	m.log.Infow("session stopped", "session", sess.ID)
	return stopErr
}

func (m *Manager) stopDetached(res resource) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return res.stop(ctx)
}

// freePort asks the kernel for an unused local port by binding to zero and
// reading back the assignment.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
