// ABOUTME: Tests for the staggered spawn scheduler.
// ABOUTME: Uses a fake clock and mock sessions to drive the agent lifecycle.

package fleet

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-fleet/internal/agent"
	"github.com/2389/coven-fleet/internal/clock"
	"github.com/2389/coven-fleet/internal/journal"
	"github.com/2389/coven-fleet/internal/session"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

type spawnFixture struct {
	spawner  *Spawner
	client   *session.MockClient
	agents   *agent.Manager
	clock    *clock.FakeClock
	reporter *recordingReporter
	journal  *memoryJournal
	loop     *Loop
	stopLoop func()
}

func newSpawnFixture(t *testing.T, count int, delay time.Duration) *spawnFixture {
	t.Helper()
	loop, stop := startStoppableLoop(t)
	f := &spawnFixture{
		client:   session.NewMockClient(),
		agents:   agent.NewManager(slog.Default()),
		clock:    clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		reporter: &recordingReporter{},
		journal:  &memoryJournal{},
		loop:     loop,
		stopLoop: stop,
	}
	f.client.AutoConnect = true
	f.spawner = NewSpawner(SpawnerParams{
		Config: SpawnConfig{
			Host:           "localhost",
			Port:           25565,
			Version:        "1.21",
			Count:          count,
			Delay:          delay,
			UsernamePrefix: "TestBot_",
			AuthCommands:   DefaultAuthCommands,
			Movements:      session.DefaultMovements(),
		},
		Client:   f.client,
		Agents:   f.agents,
		Loop:     f.loop,
		Clock:    f.clock,
		Journal:  f.journal,
		Reporter: f.reporter,
	})
	return f
}

func (f *spawnFixture) attempts() int {
	return len(f.client.Attempts())
}

func (f *spawnFixture) waitRegistered(t *testing.T, ids ...int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return slices.Equal(ids, f.agents.IDs())
	}, waitFor, tick, "registry never reached %v, have %v", ids, f.agents.IDs())
}

func TestSpawner_StaggersAttempts(t *testing.T) {
	f := newSpawnFixture(t, 3, 2*time.Second)
	f.client.AutoConnect = false
	require.NoError(t, f.spawner.Start(context.Background()))

	require.Eventually(t, func() bool { return f.attempts() == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return f.attempts() > 1 }, 50*time.Millisecond, tick)

	f.clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return f.attempts() == 2 }, waitFor, tick)

	f.clock.Advance(time.Second)
	assert.Never(t, func() bool { return f.attempts() > 2 }, 50*time.Millisecond, tick)

	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.attempts() == 3 }, waitFor, tick)

	attempts := f.client.Attempts()
	for i, p := range attempts {
		assert.Equal(t, f.spawner.Username(i), p.Username)
		assert.Equal(t, "localhost", p.Host)
		assert.Equal(t, 25565, p.Port)
		assert.Equal(t, "1.21", p.Version)
	}
	assert.Equal(t, 0, f.clock.Pending())
}

func TestSpawner_StartTwice(t *testing.T) {
	f := newSpawnFixture(t, 1, 0)
	require.NoError(t, f.spawner.Start(context.Background()))
	assert.ErrorIs(t, f.spawner.Start(context.Background()), ErrAlreadyStarted)
}

func TestSpawner_ZeroDelayRegistersAll(t *testing.T) {
	f := newSpawnFixture(t, 2, 0)
	require.NoError(t, f.spawner.Start(context.Background()))

	f.waitRegistered(t, 0, 1)

	for _, id := range []int{0, 1} {
		h, ok := f.agents.GetAgent(id)
		require.True(t, ok)
		assert.Equal(t, agent.StatusActive, h.Status())
		assert.Equal(t, "TestBot_"+strconv.Itoa(id), h.Name)
	}
	require.Eventually(t, func() bool {
		return f.reporter.contains("TestBot_0 connected.") && f.reporter.contains("TestBot_1 connected.")
	}, waitFor, tick)
}

func TestSpawner_BootstrapSendsAuthAndMovements(t *testing.T) {
	f := newSpawnFixture(t, 1, 0)
	require.NoError(t, f.spawner.Start(context.Background()))
	f.waitRegistered(t, 0)

	sess, ok := f.client.Session("TestBot_0")
	require.True(t, ok)
	assert.Equal(t, []string{"/register TestBot_0", "/login TestBot_0"}, sess.Chats())
	assert.Len(t, sess.Movements(), 1)
}

func TestSpawner_NotRegisteredBeforeSpawnEvent(t *testing.T) {
	f := newSpawnFixture(t, 1, 0)
	f.client.AutoConnect = false
	require.NoError(t, f.spawner.Start(context.Background()))

	require.Eventually(t, func() bool { return f.attempts() == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return f.agents.Len() > 0 }, 50*time.Millisecond, tick)

	var sess *session.MockSession
	require.Eventually(t, func() bool {
		var ok bool
		sess, ok = f.client.Session("TestBot_0")
		return ok
	}, waitFor, tick)
	sess.Emit(session.Event{Kind: session.EventConnected})

	f.waitRegistered(t, 0)
}

func TestSpawner_RespawnDoesNotRepeatBootstrap(t *testing.T) {
	f := newSpawnFixture(t, 1, 0)
	require.NoError(t, f.spawner.Start(context.Background()))
	f.waitRegistered(t, 0)

	sess, _ := f.client.Session("TestBot_0")
	sess.Emit(session.Event{Kind: session.EventConnected})
	require.NoError(t, f.loop.Do(context.Background(), func() {}))
	require.NoError(t, f.loop.Do(context.Background(), func() {}))

	assert.Len(t, sess.Chats(), 2)
	assert.Equal(t, []int{0}, f.agents.IDs())
}

func TestSpawner_ConnectFailureIsSlotFatal(t *testing.T) {
	f := newSpawnFixture(t, 3, 0)
	f.client.FailFor("TestBot_1", errors.New("connection refused"))
	require.NoError(t, f.spawner.Start(context.Background()))

	f.waitRegistered(t, 0, 2)
	require.Eventually(t, func() bool {
		return f.reporter.contains("TestBot_1 failed to connect: connection refused")
	}, waitFor, tick)

	assert.Equal(t, 3, f.attempts())
	assert.Equal(t, []journal.Kind{journal.KindSpawnAttempt, journal.KindConnectFailed}, f.journal.kinds(1))
}

func TestSpawner_DisconnectRemovesAgent(t *testing.T) {
	f := newSpawnFixture(t, 2, 0)
	require.NoError(t, f.spawner.Start(context.Background()))
	f.waitRegistered(t, 0, 1)

	sess, _ := f.client.Session("TestBot_0")
	require.NoError(t, sess.End("kicked"))

	f.waitRegistered(t, 1)
	require.Eventually(t, func() bool { return f.reporter.contains("TestBot_0 disconnected.") }, waitFor, tick)
	assert.Equal(t,
		[]journal.Kind{journal.KindSpawnAttempt, journal.KindConnected, journal.KindDisconnected},
		f.journal.kinds(0),
	)
}

func TestSpawner_SessionErrorRemovesAgentAndEndsSession(t *testing.T) {
	f := newSpawnFixture(t, 1, 0)
	require.NoError(t, f.spawner.Start(context.Background()))
	f.waitRegistered(t, 0)

	sess, _ := f.client.Session("TestBot_0")
	sess.Emit(session.Event{Kind: session.EventFailed, Reason: "protocol error"})

	f.waitRegistered(t)
	require.Eventually(t, sess.Closed, waitFor, tick)
	assert.Contains(t, sess.EndReasons(), "session error")
	assert.True(t, f.reporter.contains("TestBot_0 error: protocol error"))
}

func TestSpawner_EventsDrainedAfterLoopStops(t *testing.T) {
	f := newSpawnFixture(t, 1, 0)
	require.NoError(t, f.spawner.Start(context.Background()))
	f.waitRegistered(t, 0)

	sess, ok := f.client.Session("TestBot_0")
	require.True(t, ok)
	f.stopLoop()

	// More events than the session buffers; the sender blocks unless the pump keeps reading.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			sess.Emit(session.Event{Kind: session.EventFailed, Reason: "late"})
		}
		sess.Emit(session.Event{Kind: session.EventDisconnected, Reason: "late"})
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("session events were not drained after the loop stopped")
	}
	assert.True(t, sess.Closed())
}

func TestSpawner_ShutdownDrains(t *testing.T) {
	f := newSpawnFixture(t, 4, 10*time.Second)
	require.NoError(t, f.spawner.Start(context.Background()))
	f.waitRegistered(t, 0)
	f.clock.Advance(10 * time.Second)
	f.waitRegistered(t, 0, 1)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, f.spawner.Shutdown(ctx))

	assert.Equal(t, 0, f.agents.Len())
	for _, name := range []string{"TestBot_0", "TestBot_1"} {
		sess, ok := f.client.Session(name)
		require.True(t, ok)
		assert.True(t, sess.Closed())
		assert.Contains(t, sess.EndReasons(), "shutdown")
	}

	f.clock.Advance(time.Minute)
	assert.Never(t, func() bool { return f.attempts() > 2 }, 50*time.Millisecond, tick)
}

func TestSpawner_ShutdownWithNothingLive(t *testing.T) {
	f := newSpawnFixture(t, 0, time.Second)
	require.NoError(t, f.spawner.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	assert.NoError(t, f.spawner.Shutdown(ctx))
}

func TestSpawner_ShutdownTimesOut(t *testing.T) {
	f := newSpawnFixture(t, 1, 0)
	f.client.Setup = func(s *session.MockSession) {
		s.SetActionError(session.ActionEnd, errors.New("stuck"))
	}
	require.NoError(t, f.spawner.Start(context.Background()))
	f.waitRegistered(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.spawner.Shutdown(ctx), context.DeadlineExceeded)
}
