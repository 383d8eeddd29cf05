// ABOUTME: Staggered spawn scheduler that connects agents and supervises their sessions.
// ABOUTME: Session lifecycle events are applied on the control loop to keep the registry consistent.

package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/2389/coven-fleet/internal/agent"
	"github.com/2389/coven-fleet/internal/clock"
	"github.com/2389/coven-fleet/internal/journal"
	"github.com/2389/coven-fleet/internal/session"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("spawner already started")

// DefaultAuthCommands are sent as chat after every agent spawns.
var DefaultAuthCommands = []string{"/register {name}", "/login {name}"}

// Reporter shows fleet activity to the operator.
type Reporter interface {
	Info(format string, args ...any)
	Success(format string, args ...any)
	Error(format string, args ...any)
}

type discardReporter struct{}

func (discardReporter) Info(string, ...any)    {}
func (discardReporter) Success(string, ...any) {}
func (discardReporter) Error(string, ...any)   {}

// SpawnConfig describes the fleet to create.
type SpawnConfig struct {
	Host    string
	Port    int
	Version string

	Count          int
	Delay          time.Duration
	UsernamePrefix string
	// AuthCommands defaults to DefaultAuthCommands when nil; empty sends none.
	AuthCommands   []string
	Movements      session.MovementProfile
}

// SpawnerParams holds the Spawner's collaborators.
type SpawnerParams struct {
	Config   SpawnConfig
	Client   session.Client
	Agents   *agent.Manager
	Loop     *Loop
	Clock    clock.Clock
	Journal  journal.Recorder
	Reporter Reporter
	Logger   *slog.Logger
}

// Spawner creates the fleet's agents and supervises their sessions.
// Apart from Start and Shutdown, its state is only touched on the Loop.
type Spawner struct {
	cfg      SpawnConfig
	client   session.Client
	agents   *agent.Manager
	loop     *Loop
	clock    clock.Clock
	journal  journal.Recorder
	reporter Reporter
	logger   *slog.Logger

	started  bool
	timers   []*clock.Timer
	handles  map[int]*agent.Handle // every agent whose session has not closed
	draining bool
	drained  chan struct{}
}

// NewSpawner creates a Spawner.
func NewSpawner(p SpawnerParams) *Spawner {
	if p.Clock == nil {
		p.Clock = clock.Real()
	}
	if p.Journal == nil {
		p.Journal = journal.Nop{}
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Reporter == nil {
		p.Reporter = discardReporter{}
	}
	if p.Config.AuthCommands == nil {
		p.Config.AuthCommands = DefaultAuthCommands
	}
	return &Spawner{
		cfg:      p.Config,
		client:   p.Client,
		agents:   p.Agents,
		loop:     p.Loop,
		clock:    p.Clock,
		journal:  p.Journal,
		reporter: p.Reporter,
		logger:   p.Logger.With("component", "spawner"),
		handles:  make(map[int]*agent.Handle),
		drained:  make(chan struct{}),
	}
}

// Username returns the account name for spawn index id.
func (s *Spawner) Username(id int) string {
	return s.cfg.UsernamePrefix + strconv.Itoa(id)
}

// Start schedules Count spawn attempts at 0, Delay, 2*Delay, ... from now.
// Connections use ctx; cancelling it aborts attempts still dialing.
func (s *Spawner) Start(ctx context.Context) error {
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	s.logger.Info("scheduling fleet",
		"count", s.cfg.Count,
		"delay", s.cfg.Delay,
		"server", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		"version", s.cfg.Version,
	)

	timers := make([]*clock.Timer, 0, s.cfg.Count)
	for i := 0; i < s.cfg.Count; i++ {
		id := i
		timers = append(timers, s.clock.AfterFunc(time.Duration(i)*s.cfg.Delay, func() {
			s.loop.Post(func() { s.attempt(ctx, id) })
		}))
	}
	// Timers are read again only by Shutdown, which runs on the loop.
	s.loop.Post(func() { s.timers = timers })
	return nil
}

// attempt runs on the loop.
func (s *Spawner) attempt(ctx context.Context, id int) {
	if s.draining {
		return
	}

	name := s.Username(id)
	h := agent.NewHandle(id, name, s.logger)
	s.handles[id] = h
	s.record(id, journal.KindSpawnAttempt, "")

	params := session.Params{
		Host:     s.cfg.Host,
		Port:     s.cfg.Port,
		Username: name,
		Version:  s.cfg.Version,
	}
	s.logger.Debug("connecting agent", "agent_id", id, "name", name)

	go func() {
		sess, err := s.client.Connect(ctx, params)
		if !s.loop.Post(func() { s.connected(h, sess, err) }) && sess != nil {
			_ = sess.End("fleet stopped")
		}
	}()
}

// connected runs on the loop.
func (s *Spawner) connected(h *agent.Handle, sess session.Session, err error) {
	if err != nil {
		h.SetStatus(agent.StatusErrored)
		s.forget(h)
		s.reporter.Error("%s failed to connect: %v", h.Name, err)
		s.logger.Warn("agent connect failed", "agent_id", h.ID, "name", h.Name, "error", err)
		s.record(h.ID, journal.KindConnectFailed, err.Error())
		return
	}

	h.Attach(sess)
	go s.pump(h, sess)

	if s.draining {
		_ = sess.End("shutdown")
	}
}

// pump forwards session events to the loop until the stream closes.
func (s *Spawner) pump(h *agent.Handle, sess session.Session) {
	for ev := range sess.Events() {
		if !s.loop.Post(func() { s.handleEvent(h, ev) }) {
			// The session keeps emitting until it closes; a blocked sender would never exit.
			for range sess.Events() {
			}
			return
		}
	}
	s.loop.Post(func() { s.closed(h, "") })
}

// handleEvent runs on the loop.
func (s *Spawner) handleEvent(h *agent.Handle, ev session.Event) {
	switch ev.Kind {
	case session.EventConnected:
		s.spawned(h)
	case session.EventFailed:
		s.failed(h, ev.Reason)
	case session.EventDisconnected:
		s.closed(h, ev.Reason)
	}
}

func (s *Spawner) spawned(h *agent.Handle) {
	if h.Status() != agent.StatusConnecting {
		s.logger.Debug("agent respawned", "agent_id", h.ID, "status", h.Status())
		return
	}

	if err := h.Bootstrap(s.cfg.AuthCommands, s.cfg.Movements); err != nil {
		s.logger.Warn("agent bootstrap incomplete", "agent_id", h.ID, "error", err)
	}
	h.SetStatus(agent.StatusActive)

	if err := s.agents.Register(h); err != nil {
		s.logger.Error("agent registration rejected", "agent_id", h.ID, "error", err)
		return
	}
	s.reporter.Success("%s connected.", h.Name)
	s.record(h.ID, journal.KindConnected, "")
}

func (s *Spawner) failed(h *agent.Handle, reason string) {
	if h.Status() == agent.StatusDisconnected {
		return
	}
	h.SetStatus(agent.StatusErrored)
	s.agents.Unregister(h.ID)
	s.reporter.Error("%s error: %s", h.Name, reason)
	s.logger.Warn("agent session error", "agent_id", h.ID, "reason", reason)
	s.record(h.ID, journal.KindSessionError, reason)

	if sess := h.Session(); sess != nil {
		go func() {
			if err := sess.End("session error"); err != nil {
				s.logger.Debug("ending failed session", "agent_id", h.ID, "error", err)
			}
		}()
	}
}

func (s *Spawner) closed(h *agent.Handle, reason string) {
	if h.Status() == agent.StatusDisconnected {
		return
	}
	h.SetStatus(agent.StatusDisconnected)
	s.agents.Unregister(h.ID)
	s.forget(h)
	s.reporter.Info("%s disconnected.", h.Name)
	s.record(h.ID, journal.KindDisconnected, reason)
}

// forget drops h from the live set and completes a pending drain.
func (s *Spawner) forget(h *agent.Handle) {
	delete(s.handles, h.ID)
	if s.draining && len(s.handles) == 0 {
		s.closeDrained()
	}
}

func (s *Spawner) closeDrained() {
	select {
	case <-s.drained:
	default:
		close(s.drained)
	}
}

func (s *Spawner) record(agentID int, kind journal.Kind, detail string) {
	err := s.journal.Record(context.Background(), &journal.Event{
		AgentID: agentID,
		Kind:    kind,
		Detail:  detail,
	})
	if err != nil {
		s.logger.Warn("journal write failed", "kind", kind, "error", err)
	}
}

// Shutdown stops pending spawns, ends every live session and waits until all
// of them have closed or ctx ends. The Loop must still be running.
func (s *Spawner) Shutdown(ctx context.Context) error {
	err := s.loop.Do(ctx, func() {
		s.draining = true
		for _, t := range s.timers {
			t.Stop()
		}
		for _, h := range s.handles {
			if sess := h.Session(); sess != nil {
				go func() { _ = sess.End("shutdown") }()
			}
		}
		if len(s.handles) == 0 {
			s.closeDrained()
		}
	})
	if err != nil {
		return fmt.Errorf("requesting shutdown: %w", err)
	}

	select {
	case <-s.drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions to close: %w", ctx.Err())
	}
}
