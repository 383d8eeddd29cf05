// ABOUTME: Tests for the command dispatcher against mock sessions.
// ABOUTME: Covers target policy, not-found handling, async failures and fleet scenarios.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-fleet/internal/agent"
	"github.com/2389/coven-fleet/internal/clock"
	"github.com/2389/coven-fleet/internal/fleet"
	"github.com/2389/coven-fleet/internal/journal"
	"github.com/2389/coven-fleet/internal/session"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

type recordingReporter struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingReporter) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recordingReporter) Info(format string, args ...any)    { r.add(format, args...) }
func (r *recordingReporter) Success(format string, args ...any) { r.add(format, args...) }
func (r *recordingReporter) Warn(format string, args ...any)    { r.add(format, args...) }
func (r *recordingReporter) Error(format string, args ...any)   { r.add(format, args...) }

func (r *recordingReporter) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *recordingReporter) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lines) == 0 {
		return ""
	}
	return r.lines[len(r.lines)-1]
}

func (r *recordingReporter) Contains(line string) bool {
	for _, l := range r.Lines() {
		if l == line {
			return true
		}
	}
	return false
}

type memoryJournal struct {
	mu     sync.Mutex
	events []journal.Event
}

func (m *memoryJournal) Record(_ context.Context, e *journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

type dispatchFixture struct {
	dispatcher *Dispatcher
	agents     *agent.Manager
	loop       *fleet.Loop
	clock      *clock.FakeClock
	reporter   *recordingReporter
	journal    *memoryJournal
	sessions   map[int]*session.MockSession
}

func newDispatchFixture(t *testing.T, ids ...int) *dispatchFixture {
	t.Helper()
	loop := fleet.NewLoop(0, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Stopped()
	})

	f := &dispatchFixture{
		agents:   agent.NewManager(slog.Default()),
		loop:     loop,
		clock:    clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		reporter: &recordingReporter{},
		journal:  &memoryJournal{},
		sessions: make(map[int]*session.MockSession),
	}
	f.dispatcher = New(Params{
		Agents:    f.agents,
		Post:      loop.Post,
		Clock:     f.clock,
		Journal:   f.journal,
		Reporter:  f.reporter,
		Movements: session.DefaultMovements(),
	})

	for _, id := range ids {
		name := fmt.Sprintf("TestBot_%d", id)
		h := agent.NewHandle(id, name, nil)
		s := session.NewMockSession(name)
		h.Attach(s)
		h.SetStatus(agent.StatusActive)
		require.NoError(t, f.agents.Register(h))
		f.sessions[id] = s
	}
	return f
}

func (f *dispatchFixture) run(t *testing.T, line string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.loop.Do(ctx, func() { f.dispatcher.Dispatch(ctx, line) }))
}

func (f *dispatchFixture) eventually(t *testing.T, line string) {
	t.Helper()
	require.Eventually(t, func() bool { return f.reporter.Contains(line) },
		waitFor, tick, "never printed %q, got %v", line, f.reporter.Lines())
}

func TestDispatch_SayBroadcast(t *testing.T) {
	f := newDispatchFixture(t, 0, 1, 2)
	f.run(t, "say hello")

	for _, s := range f.sessions {
		assert.Equal(t, []string{"hello"}, s.Chats())
	}
}

func TestDispatch_SayTargeted(t *testing.T) {
	f := newDispatchFixture(t, 0, 1, 2)
	f.run(t, "say 2 hello")

	assert.Equal(t, []string{"hello"}, f.sessions[2].Chats())
	assert.Empty(t, f.sessions[0].Chats())
	assert.Empty(t, f.sessions[1].Chats())
}

func TestDispatch_SayNumericFirstTokenTargets(t *testing.T) {
	f := newDispatchFixture(t, 0)
	f.run(t, "say 5 diamonds!")

	assert.Equal(t, "Bot 5 not found.", f.reporter.Last())
	assert.Empty(t, f.sessions[0].Chats())
}

func TestDispatch_SayWithNoAgents(t *testing.T) {
	f := newDispatchFixture(t)
	f.run(t, "say hello")
	assert.Equal(t, "No active bots.", f.reporter.Last())
}

func TestDispatch_AbsentTargetInvokesNothing(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"say 9 hi", "Bot 9 not found."},
		{"exit 9", "Bot 9 not found."},
		{"jump 9", "Bot 9 not found."},
		{"follow 9 steve", "Bot or player not found."},
		{"stop 9", "Bot 9 not found."},
		{"tp 9 1 2 3", "Bot 9 not found."},
		{"pos 9", "Bot not found."},
		{"dig 9", "No block to dig or bot not found."},
		{"place 9", "Cannot place block."},
		{"equip 9 dirt", "Item or bot not found."},
		{"inv 9", "Bot not found."},
		{"look 9 0 0", "Bot not found."},
		{"craft 9 stick", "Recipe for stick not found."},
		{"use 9", "Bot 9 not found."},
		{"attack 9", "No entity or bot not found."},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			f := newDispatchFixture(t, 0)
			s := f.sessions[0]
			s.AddPlayer(session.Entity{Username: "steve"})
			s.SetCursor(session.Block{Name: "stone"})
			s.SetItems(session.Item{Name: "dirt", Count: 1})
			s.AddRecipe("stick", session.Recipe{ID: "stick"})
			s.SetNearest(session.Entity{Name: "zombie"})

			f.run(t, tt.line)

			assert.Equal(t, []string{tt.want}, f.reporter.Lines())
			assert.Empty(t, s.Chats())
			assert.Empty(t, s.Controls())
			assert.Empty(t, s.Goals())
			assert.Empty(t, s.Looks())
			assert.Empty(t, s.Dug())
			assert.Empty(t, s.Placed())
			assert.Empty(t, s.Equipped())
			assert.Empty(t, s.Crafted())
			assert.Empty(t, s.Attacks())
			assert.Empty(t, s.EndReasons())
			assert.Zero(t, s.Activations())
		})
	}
}

func TestDispatch_UsageAndUnknown(t *testing.T) {
	f := newDispatchFixture(t, 0)

	f.run(t, "tp 0 10 abc 5")
	assert.Equal(t, "Usage: tp <id> <x> <y> <z>", f.reporter.Last())
	assert.Empty(t, f.sessions[0].Chats())

	f.run(t, "dance")
	assert.Equal(t, "Unknown command. Type `help`.", f.reporter.Last())

	f.run(t, "")
	assert.Len(t, f.reporter.Lines(), 2)
}

func TestDispatch_List(t *testing.T) {
	f := newDispatchFixture(t)
	f.run(t, "list")
	assert.Equal(t, "Active bots: None", f.reporter.Last())

	f = newDispatchFixture(t, 3, 0, 1)
	f.run(t, "list")
	assert.Equal(t, "Active bots: 0, 1, 3", f.reporter.Last())
}

func TestDispatch_Teleport(t *testing.T) {
	f := newDispatchFixture(t, 0)
	f.run(t, "tp 0 10 64 -5.5")
	assert.Equal(t, []string{"/tp 10 64 -5.5"}, f.sessions[0].Chats())
}

func TestDispatch_JumpReleasesAfterDelay(t *testing.T) {
	f := newDispatchFixture(t, 0)
	s := f.sessions[0]
	f.run(t, "jump 0")

	require.Equal(t, []session.ControlChange{{Control: session.ControlJump, State: true}}, s.Controls())

	f.clock.Advance(JumpDuration - time.Millisecond)
	require.NoError(t, f.loop.Do(context.Background(), func() {}))
	assert.Len(t, s.Controls(), 1)

	f.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return len(s.Controls()) == 2 }, waitFor, tick)
	assert.Equal(t, session.ControlChange{Control: session.ControlJump, State: false}, s.Controls()[1])
}

func TestDispatch_FollowThenStop(t *testing.T) {
	f := newDispatchFixture(t, 0)
	s := f.sessions[0]
	steve := session.Entity{ID: 42, Username: "steve"}
	s.AddPlayer(steve)

	f.run(t, "follow 0 steve")
	f.eventually(t, "Bot 0 following steve")
	assert.Equal(t, session.FollowEntity{Target: steve, Range: agent.FollowRange}, s.CurrentGoal())
	assert.Len(t, s.Movements(), 1)

	f.run(t, "stop 0")
	assert.Nil(t, s.CurrentGoal())
	h, _ := f.agents.GetAgent(0)
	assert.Nil(t, h.Goal())
}

func TestDispatch_FollowUnknownPlayer(t *testing.T) {
	f := newDispatchFixture(t, 0)
	f.run(t, "follow 0 nobody")
	f.eventually(t, "Bot or player not found.")
	assert.Empty(t, f.sessions[0].Goals())
}

func TestDispatch_Pos(t *testing.T) {
	f := newDispatchFixture(t, 0)
	f.sessions[0].SetPosition(session.Vec3{X: 1, Y: 2.5, Z: -3.254})
	f.run(t, "pos 0")
	assert.Equal(t, "0: 1.00, 2.50, -3.25", f.reporter.Last())
}

func TestDispatch_Inv(t *testing.T) {
	f := newDispatchFixture(t, 0)
	f.run(t, "inv 0")
	assert.Equal(t, "Inventory is empty.", f.reporter.Last())

	f.sessions[0].SetItems(
		session.Item{Name: "dirt", Count: 12},
		session.Item{Name: "oak_log", Count: 3},
	)
	f.run(t, "inv 0")
	lines := f.reporter.Lines()
	assert.Equal(t, []string{"- dirt x12", "- oak_log x3"}, lines[len(lines)-2:])
}

func TestDispatch_Look(t *testing.T) {
	f := newDispatchFixture(t, 0)
	f.run(t, "look 0 1.5 -0.5")
	assert.Equal(t, []session.LookCall{{Yaw: 1.5, Pitch: -0.5, Force: true}}, f.sessions[0].Looks())
}

func TestDispatch_UseAndAttack(t *testing.T) {
	f := newDispatchFixture(t, 0)
	s := f.sessions[0]

	f.run(t, "use 0")
	assert.Equal(t, 1, s.Activations())

	f.run(t, "attack 0")
	f.eventually(t, "No entity or bot not found.")
	assert.Empty(t, s.Attacks())

	s.SetNearest(session.Entity{ID: 7, Name: "zombie"})
	f.run(t, "attack 0")
	f.eventually(t, "Attacking zombie")
	assert.Len(t, s.Attacks(), 1)
}

func TestDispatch_DigAndPlace(t *testing.T) {
	f := newDispatchFixture(t, 0)
	s := f.sessions[0]

	f.run(t, "dig 0")
	f.eventually(t, "No block to dig or bot not found.")
	f.run(t, "place 0")
	f.eventually(t, "Cannot place block.")
	assert.Empty(t, s.Dug())
	assert.Empty(t, s.Placed())

	stone := session.Block{Name: "stone", Position: session.Vec3{X: 1, Y: 64, Z: 1}}
	s.SetCursor(stone)
	f.run(t, "dig 0")
	f.run(t, "place 0")

	require.Eventually(t, func() bool { return len(s.Dug()) == 1 && len(s.Placed()) == 1 }, waitFor, tick)
	assert.Equal(t, stone, s.Dug()[0])
	assert.Equal(t, agent.PlaceFace, s.Placed()[0].Face)
}

func TestDispatch_AsyncFailuresGoThroughSink(t *testing.T) {
	f := newDispatchFixture(t, 0)
	s := f.sessions[0]
	s.SetCursor(session.Block{Name: "bedrock"})
	s.SetItems(session.Item{Name: "dirt", Count: 1})
	s.AddRecipe("stick", session.Recipe{ID: "stick"})
	s.SetActionError(session.ActionDig, errors.New("block is unbreakable"))
	s.SetActionError(session.ActionPlace, errors.New("no item in hand"))
	s.SetActionError(session.ActionEquip, errors.New("slot locked"))
	s.SetActionError(session.ActionCraft, errors.New("missing ingredients"))

	f.run(t, "dig 0")
	f.run(t, "place 0")
	f.run(t, "equip 0 dirt")
	f.run(t, "craft 0 stick 2")

	f.eventually(t, "Dig error: block is unbreakable")
	f.eventually(t, "Place error: no item in hand")
	f.eventually(t, "Equip error: slot locked")
	f.eventually(t, "Craft error: missing ingredients")
}

func TestDispatch_AsyncDoesNotBlockLoop(t *testing.T) {
	f := newDispatchFixture(t, 0)
	s := f.sessions[0]
	s.SetCursor(session.Block{Name: "stone"})
	release := s.Hold()
	defer release()

	f.run(t, "dig 0")
	f.run(t, "list")
	assert.Equal(t, "Active bots: 0", f.reporter.Last())
	assert.Empty(t, s.Dug())

	release()
	require.Eventually(t, func() bool { return len(s.Dug()) == 1 }, waitFor, tick)
}

func TestDispatch_SlowLookupDoesNotBlockLoop(t *testing.T) {
	for _, line := range []string{"dig 0", "place 0", "craft 0 stick", "follow 0 steve", "attack 0"} {
		t.Run(line, func(t *testing.T) {
			f := newDispatchFixture(t, 0)
			s := f.sessions[0]
			s.SetCursor(session.Block{Name: "stone"})
			s.AddRecipe("stick", session.Recipe{ID: "stick"})
			s.AddPlayer(session.Entity{Username: "steve"})
			s.SetNearest(session.Entity{Name: "zombie"})
			release := s.HoldLookups()
			defer release()

			// Dispatch must hand the line back well before the lookup is released.
			wait, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			ctx := context.Background()
			require.NoError(t, f.loop.Do(wait, func() { f.dispatcher.Dispatch(ctx, line) }))
			require.NoError(t, f.loop.Do(wait, func() { f.dispatcher.Dispatch(ctx, "list") }))
			assert.Equal(t, "Active bots: 0", f.reporter.Last())

			release()
			require.Eventually(t, func() bool {
				return len(s.Dug())+len(s.Placed())+len(s.Crafted())+len(s.Attacks())+len(s.Goals()) == 1
			}, waitFor, tick)
		})
	}
}

func TestDispatch_Equip(t *testing.T) {
	f := newDispatchFixture(t, 0)
	s := f.sessions[0]
	s.SetItems(session.Item{Name: "diamond_sword", Count: 1, Slot: 36})

	f.run(t, "equip 0 stick")
	assert.Equal(t, "Item or bot not found.", f.reporter.Last())

	f.run(t, "equip 0 diamond_sword")
	require.Eventually(t, func() bool { return len(s.Equipped()) == 1 }, waitFor, tick)

	h, _ := f.agents.GetAgent(0)
	require.Eventually(t, func() bool {
		held, ok := h.Held()
		return ok && held.Name == "diamond_sword"
	}, waitFor, tick)
}

func TestDispatch_CraftRecipeNotFound(t *testing.T) {
	f := newDispatchFixture(t, 0)
	f.run(t, "craft 0 stick 4")

	f.eventually(t, "Recipe for stick not found.")
	assert.Empty(t, f.sessions[0].Crafted())
}

func TestDispatch_CraftSuccess(t *testing.T) {
	f := newDispatchFixture(t, 0)
	s := f.sessions[0]
	recipe := session.Recipe{ID: "stick", Result: "stick", ResultCount: 4}
	s.AddRecipe("stick", recipe)

	f.run(t, "craft 0 stick 4")

	f.eventually(t, "Crafted 4x stick")
	assert.Equal(t, []session.CraftCall{{Recipe: recipe, Count: 4}}, s.Crafted())
}

func TestDispatch_ExitEndsSession(t *testing.T) {
	f := newDispatchFixture(t, 0, 1)
	f.run(t, "exit 1")

	require.Eventually(t, f.sessions[1].Closed, waitFor, tick)
	assert.False(t, f.sessions[0].Closed())
	assert.Equal(t, []string{"operator exit"}, f.sessions[1].EndReasons())
}

func TestDispatch_ExitFailureReported(t *testing.T) {
	f := newDispatchFixture(t, 0)
	f.sessions[0].SetActionError(session.ActionEnd, errors.New("already closing"))
	f.run(t, "exit 0")
	f.eventually(t, "Exit error: already closing")
}

func TestDispatch_Help(t *testing.T) {
	f := newDispatchFixture(t)
	f.run(t, "help")

	lines := f.reporter.Lines()
	require.Len(t, lines, len(helpLines))
	for _, verb := range []string{"say", "exit", "craft", "attack"} {
		found := false
		for _, l := range lines {
			if strings.HasPrefix(strings.TrimSpace(l), verb+" ") {
				found = true
			}
		}
		assert.True(t, found, "help lists %s", verb)
	}
}

func TestDispatch_JournalsCommands(t *testing.T) {
	f := newDispatchFixture(t, 0)
	f.run(t, "say 0 hi")
	f.run(t, "list")
	f.run(t, "dance")

	f.journal.mu.Lock()
	defer f.journal.mu.Unlock()
	require.Len(t, f.journal.events, 3)
	assert.Equal(t, 0, f.journal.events[0].AgentID)
	assert.Equal(t, "say 0 hi", f.journal.events[0].Detail)
	assert.Equal(t, journal.FleetWide, f.journal.events[1].AgentID)
	assert.Equal(t, journal.KindCommand, f.journal.events[2].Kind)
}
