// Package backend manages the automation session a run executes against:
// local or remote browsers, managed docker containers, and managed
// kubernetes pods.
package backend

import (
	"errors"
	"fmt"
	"sync"
)

// Kind selects the backend flavor.
type Kind string

const (
	KindLocal  Kind = "local"
	KindDocker Kind = "docker"
	KindK8s    Kind = "k8s"
	KindInPod  Kind = "inpod"
	KindDryRun Kind = "dry-run"
)

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLocal, KindDocker, KindK8s, KindInPod, KindDryRun:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown backend kind %q", s)
}

// Endpoint resolution defaults and environment contract.
const (
	EnvTestRunnerURL       = "TEST_RUNNER_URL"
	DefaultDockerEndpoint  = "ws://localhost:9222"
	DefaultSidecarEndpoint = "ws://aether-lens-sidecar:9222"
)

// The browser speaks CDP on this port inside managed containers and pods.
const containerPort = 3000

var (
	ErrUnavailable    = errors.New("backend unavailable")
	ErrSessionTimeout = errors.New("session startup timed out")
	ErrSessionClosed  = errors.New("session closed")
)

// Descriptor tells the manager what to run against.
type Descriptor struct {
	Kind          Kind
	Endpoint      string // external endpoint when not launch-managed
	LaunchManaged bool
	Image         string
	Namespace     string
}

// State is the session lifecycle position.
type State int32

const (
	StateUninitialized State = iota
	StateStarting
	StateReady
	StateInUse
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateStarting:
		return "STARTING"
	case StateReady:
		return "READY"
	case StateInUse:
		return "IN_USE"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Terminal reports whether no further transitions are legal.
func (s State) Terminal() bool { return s == StateStopped || s == StateFailed }

// validTransitions is the session state machine. Any state may additionally
// move to FAILED.
var validTransitions = map[State][]State{
	StateUninitialized: {StateStarting},
	StateStarting:      {StateReady, StateStopping},
	StateReady:         {StateInUse, StateStopping},
	StateInUse:         {StateReady, StateStopping},
	StateStopping:      {StateStopped},
}

// Session is the live (or resolved) automation endpoint.
type Session struct {
	ID         string
	Descriptor Descriptor

	mu       sync.Mutex
	state    State
	endpoint string
	port     int
	res      resource
}

// State returns the current lifecycle position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Endpoint returns the resolved ws:// URL. Empty for dry-run sessions and
// for local sessions, where the driver launches the browser itself.
func (s *Session) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// Port returns the allocated host port for managed launches, zero otherwise.
func (s *Session) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Usable reports whether strategies may execute against the session.
func (s *Session) Usable() bool {
	st := s.State()
	return st == StateReady || st == StateInUse
}

// transition moves the session along the state machine. An illegal move is
// a programming error and is reported, never silently applied.
func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return fmt.Errorf("session already %s", s.state)
	}
	if to == StateFailed {
		s.state = StateFailed
		return nil
	}
	for _, next := range validTransitions[s.state] {
		if next == to {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal session transition %s -> %s", s.state, to)
}

func (s *Session) setResolved(endpoint string, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoint = endpoint
	s.port = port
}

func (s *Session) setResource(res resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.res = res
}

func (s *Session) resource() resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.res
}
