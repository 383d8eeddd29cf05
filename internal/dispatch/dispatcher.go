// ABOUTME: Command dispatcher that resolves targets and invokes agent capabilities.
// ABOUTME: Runs on the control loop; async results come back through one failure sink.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coven-fleet/internal/agent"
	"github.com/2389/coven-fleet/internal/clock"
	"github.com/2389/coven-fleet/internal/journal"
	"github.com/2389/coven-fleet/internal/session"
)

// JumpDuration is how long the jump control stays pressed.
const JumpDuration = 500 * time.Millisecond

// Reporter shows command results to the operator.
type Reporter interface {
	Info(format string, args ...any)
	Success(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Params holds the Dispatcher's collaborators.
type Params struct {
	Agents    *agent.Manager
	Post      func(func()) bool // schedules work on the control loop
	Clock     clock.Clock
	Journal   journal.Recorder
	Reporter  Reporter
	Movements session.MovementProfile
	Logger    *slog.Logger
}

// Dispatcher executes console commands against the fleet. Dispatch must be
// called from the control loop.
type Dispatcher struct {
	agents    *agent.Manager
	post      func(func()) bool
	clock     clock.Clock
	journal   journal.Recorder
	reporter  Reporter
	movements session.MovementProfile
	logger    *slog.Logger
}

// New creates a Dispatcher.
func New(p Params) *Dispatcher {
	if p.Clock == nil {
		p.Clock = clock.Real()
	}
	if p.Journal == nil {
		p.Journal = journal.Nop{}
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return &Dispatcher{
		agents:    p.Agents,
		post:      p.Post,
		clock:     p.Clock,
		journal:   p.Journal,
		reporter:  p.Reporter,
		movements: p.Movements,
		logger:    p.Logger.With("component", "dispatcher"),
	}
}

// Dispatch parses and executes one console line. It never waits on the
// network: world lookups run inside the asynchronous actions, which inherit
// ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) {
	cmd, err := Parse(line)
	if errors.Is(err, ErrEmptyCommand) {
		return
	}
	d.record(ctx, cmd, line)

	var usageErr *UsageError
	switch {
	case errors.As(err, &usageErr):
		d.reporter.Warn("%s", usageErr.Error())
		return
	case err != nil:
		d.reporter.Warn("Unknown command. Type `help`.")
		return
	}

	d.logger.Debug("dispatching command", "verb", cmd.Verb(), "line", line)
	d.Execute(ctx, cmd)
}

// Execute runs an already parsed command.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case Say:
		d.say(c)
	case Exit:
		d.exit(ctx, c)
	case List:
		d.list()
	case Jump:
		d.jump(c)
	case Follow:
		d.follow(ctx, c)
	case Stop:
		d.stop(c)
	case Teleport:
		d.teleport(c)
	case Pos:
		d.pos(c)
	case Dig:
		d.dig(ctx, c)
	case Place:
		d.place(ctx, c)
	case Equip:
		d.equip(ctx, c)
	case Inv:
		d.inv(c)
	case Look:
		d.look(c)
	case Craft:
		d.craft(ctx, c)
	case Use:
		d.use(c)
	case Attack:
		d.attack(ctx, c)
	case Help:
		for _, line := range helpLines {
			d.reporter.Info("%s", line)
		}
	default:
		d.logger.Error("unhandled command", "verb", cmd.Verb())
	}
}

// resolve looks up a command target, printing missing when it is absent.
func (d *Dispatcher) resolve(id int, missing string) (*agent.Handle, bool) {
	h, err := d.agents.Lookup(id)
	if err != nil {
		d.reporter.Error("%s", missing)
		d.logger.Debug("command target missing", "error", err)
		return nil, false
	}
	return h, true
}

func botNotFound(id int) string {
	return fmt.Sprintf("Bot %d not found.", id)
}

func (d *Dispatcher) say(c Say) {
	if !c.Broadcast {
		h, ok := d.resolve(c.ID, botNotFound(c.ID))
		if !ok {
			return
		}
		d.check("chat", h, h.Chat(c.Text))
		return
	}

	agents := d.agents.ListAgents()
	if len(agents) == 0 {
		d.reporter.Info("No active bots.")
		return
	}
	for _, h := range agents {
		d.check("chat", h, h.Chat(c.Text))
	}
}

func (d *Dispatcher) exit(ctx context.Context, c Exit) {
	if c.All {
		for _, h := range d.agents.ListAgents() {
			d.track(h.Disconnect(ctx, "operator exit"), outcome{action: "Exit", agentID: h.ID})
		}
		return
	}
	h, ok := d.resolve(c.ID, botNotFound(c.ID))
	if !ok {
		return
	}
	d.track(h.Disconnect(ctx, "operator exit"), outcome{action: "Exit", agentID: h.ID})
}

func (d *Dispatcher) list() {
	ids := d.agents.IDs()
	if len(ids) == 0 {
		d.reporter.Info("Active bots: None")
		return
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	d.reporter.Info("Active bots: %s", strings.Join(parts, ", "))
}

func (d *Dispatcher) jump(c Jump) {
	h, ok := d.resolve(c.ID, botNotFound(c.ID))
	if !ok {
		return
	}
	if !d.check("jump", h, h.SetControl(session.ControlJump, true)) {
		return
	}
	d.clock.AfterFunc(JumpDuration, func() {
		d.post(func() {
			if err := h.SetControl(session.ControlJump, false); err != nil {
				d.logger.Debug("releasing jump", "agent_id", h.ID, "error", err)
			}
		})
	})
}

func (d *Dispatcher) follow(ctx context.Context, c Follow) {
	const missing = "Bot or player not found."
	h, ok := d.resolve(c.ID, missing)
	if !ok {
		return
	}
	f, err := h.Follow(ctx, c.Player, d.movements)
	if !d.check("follow", h, err) {
		return
	}
	d.track(f, outcome{
		action:   "Follow",
		agentID:  h.ID,
		missing:  agent.ErrPlayerNotFound,
		notFound: missing,
		onSuccess: func() {
			d.reporter.Info("Bot %d following %s", h.ID, c.Player)
		},
	})
}

func (d *Dispatcher) stop(c Stop) {
	h, ok := d.resolve(c.ID, botNotFound(c.ID))
	if !ok {
		return
	}
	if d.check("stop", h, h.Stop()) {
		d.reporter.Info("Bot %d stopped.", h.ID)
	}
}

func (d *Dispatcher) teleport(c Teleport) {
	h, ok := d.resolve(c.ID, botNotFound(c.ID))
	if !ok {
		return
	}
	d.check("tp", h, h.Teleport(c.X, c.Y, c.Z))
}

func (d *Dispatcher) pos(c Pos) {
	h, ok := d.resolve(c.ID, "Bot not found.")
	if !ok {
		return
	}
	p, err := h.Position()
	if !d.check("pos", h, err) {
		return
	}
	d.reporter.Info("%d: %s", h.ID, p)
}

func (d *Dispatcher) dig(ctx context.Context, c Dig) {
	const missing = "No block to dig or bot not found."
	h, ok := d.resolve(c.ID, missing)
	if !ok {
		return
	}
	f, err := h.Dig(ctx)
	if !d.check("dig", h, err) {
		return
	}
	d.track(f, outcome{action: "Dig", agentID: h.ID, missing: agent.ErrNoBlock, notFound: missing})
}

func (d *Dispatcher) place(ctx context.Context, c Place) {
	const missing = "Cannot place block."
	h, ok := d.resolve(c.ID, missing)
	if !ok {
		return
	}
	f, err := h.Place(ctx)
	if !d.check("place", h, err) {
		return
	}
	d.track(f, outcome{action: "Place", agentID: h.ID, missing: agent.ErrNoBlock, notFound: missing})
}

func (d *Dispatcher) equip(ctx context.Context, c Equip) {
	const missing = "Item or bot not found."
	h, ok := d.resolve(c.ID, missing)
	if !ok {
		return
	}
	f, err := h.Equip(ctx, c.Item)
	switch {
	case errors.Is(err, agent.ErrItemNotFound):
		d.reporter.Error("%s", missing)
	case err != nil:
		d.fail("Equip", h.ID, err)
	default:
		d.track(f, outcome{action: "Equip", agentID: h.ID})
	}
}

func (d *Dispatcher) inv(c Inv) {
	h, ok := d.resolve(c.ID, "Bot not found.")
	if !ok {
		return
	}
	items, err := h.Inventory()
	if !d.check("inv", h, err) {
		return
	}
	if len(items) == 0 {
		d.reporter.Info("Inventory is empty.")
		return
	}
	for _, it := range items {
		d.reporter.Info("- %s x%d", it.Name, it.Count)
	}
}

func (d *Dispatcher) look(c Look) {
	h, ok := d.resolve(c.ID, "Bot not found.")
	if !ok {
		return
	}
	d.check("look", h, h.Look(c.Yaw, c.Pitch))
}

func (d *Dispatcher) craft(ctx context.Context, c Craft) {
	missing := fmt.Sprintf("Recipe for %s not found.", c.Item)
	h, ok := d.resolve(c.ID, missing)
	if !ok {
		return
	}
	f, err := h.Craft(ctx, c.Item, c.Amount)
	if !d.check("craft", h, err) {
		return
	}
	d.track(f, outcome{
		action:   "Craft",
		agentID:  h.ID,
		missing:  agent.ErrRecipeNotFound,
		notFound: missing,
		onSuccess: func() {
			d.reporter.Success("Crafted %dx %s", c.Amount, c.Item)
		},
	})
}

func (d *Dispatcher) use(c Use) {
	h, ok := d.resolve(c.ID, botNotFound(c.ID))
	if !ok {
		return
	}
	d.check("use", h, h.Use())
}

func (d *Dispatcher) attack(ctx context.Context, c Attack) {
	const missing = "No entity or bot not found."
	h, ok := d.resolve(c.ID, missing)
	if !ok {
		return
	}
	var target session.Entity
	f, err := h.Attack(ctx, &target)
	if !d.check("attack", h, err) {
		return
	}
	d.track(f, outcome{
		action:   "Attack",
		agentID:  h.ID,
		missing:  agent.ErrNoEntity,
		notFound: missing,
		onSuccess: func() {
			d.reporter.Info("Attacking %s", target.DisplayName())
		},
	})
}

// check reports a failed synchronous capability and returns whether err was
// nil.
func (d *Dispatcher) check(action string, h *agent.Handle, err error) bool {
	if err == nil {
		return true
	}
	d.fail(strings.ToUpper(action[:1])+action[1:], h.ID, err)
	return false
}

func (d *Dispatcher) fail(action string, agentID int, err error) {
	d.reporter.Error("%s error: %v", action, err)
	d.logger.Warn("agent action failed",
		"action", strings.ToLower(action),
		"agent_id", agentID,
		"error", err,
	)
}

// outcome says how track reports an asynchronous capability's result.
type outcome struct {
	action  string
	agentID int
	// missing is the lookup error printed as notFound instead of a failure.
	missing   error
	notFound  string
	onSuccess func()
}

// track is the result sink for asynchronous capabilities. It waits for f off
// the loop and posts the outcome back: a lookup miss prints the verb's
// not-found message, other failures are reported, successes run onSuccess.
func (d *Dispatcher) track(f *agent.Future, o outcome) {
	go func() {
		<-f.Done()
		err := f.Err()
		d.post(func() {
			switch {
			case err == nil:
				if o.onSuccess != nil {
					o.onSuccess()
				}
			case o.missing != nil && errors.Is(err, o.missing):
				d.reporter.Error("%s", o.notFound)
				d.logger.Debug("capability target missing",
					"action", strings.ToLower(o.action),
					"agent_id", o.agentID,
					"error", err,
				)
			default:
				d.fail(o.action, o.agentID, err)
			}
		})
	}()
}

func (d *Dispatcher) record(ctx context.Context, cmd Command, line string) {
	agentID := journal.FleetWide
	if cmd != nil {
		if id, ok := Target(cmd); ok {
			agentID = id
		}
	}
	err := d.journal.Record(ctx, &journal.Event{
		AgentID: agentID,
		Kind:    journal.KindCommand,
		Detail:  strings.TrimSpace(line),
	})
	if err != nil {
		d.logger.Warn("journal write failed", "error", err)
	}
}
