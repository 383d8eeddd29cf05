// ABOUTME: Represents a single fleet agent and the session it drives.
// ABOUTME: Translates capability requests into session calls and tracks goal and held item.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/coven-fleet/internal/session"
)

// Capability errors. Callers report these to the operator as "not found".
var (
	ErrNotConnected    = errors.New("agent has no session")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrNoBlock         = errors.New("no block in reach")
	ErrItemNotFound    = errors.New("item not found")
	ErrRecipeNotFound  = errors.New("recipe not found")
	ErrNoEntity        = errors.New("no entity visible")
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	// CursorReach is how far the view ray is followed for dig and place.
	CursorReach = 5.0
	// FollowRange is the distance a follow goal keeps from its target.
	FollowRange = 1.0
	// DefaultLookupTimeout bounds the world query an action starts with.
	DefaultLookupTimeout = 5 * time.Second
)

// PlaceFace is the face of the reference block new blocks are placed against.
var PlaceFace = session.Vec3{X: 0, Y: 1, Z: 0}

// Status is the lifecycle state of a Handle.
type Status int

const (
	StatusConnecting Status = iota
	StatusActive
	StatusDisconnected
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusActive:
		return "active"
	case StatusDisconnected:
		return "disconnected"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Handle is one agent in the fleet.
type Handle struct {
	ID   int
	Name string

	// LookupTimeout bounds world queries made before an action starts.
	LookupTimeout time.Duration

	mu      sync.RWMutex
	status  Status
	session session.Session
	goal    session.Goal
	held    *session.Item
	logger  *slog.Logger
}

// NewHandle creates a Handle in the connecting state.
func NewHandle(id int, name string, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{
		ID:            id,
		Name:          name,
		LookupTimeout: DefaultLookupTimeout,
		status:        StatusConnecting,
		logger:        logger.With("agent_id", id, "name", name),
	}
}

// Attach binds the session the handle drives.
func (h *Handle) Attach(s session.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.session = s
}

// Session returns the attached session, or nil.
func (h *Handle) Session() session.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session
}

// Status returns the lifecycle state.
func (h *Handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// SetStatus updates the lifecycle state.
func (h *Handle) SetStatus(s Status) {
	h.mu.Lock()
	prev := h.status
	h.status = s
	h.mu.Unlock()

	if prev != s {
		h.logger.Debug("agent status changed", "from", prev, "to", s)
	}
}

// Goal returns the current movement goal, or nil.
func (h *Handle) Goal() session.Goal {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.goal
}

// Held returns the item last equipped to the hand.
func (h *Handle) Held() (session.Item, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.held == nil {
		return session.Item{}, false
	}
	return *h.held, true
}

func (h *Handle) live() (session.Session, error) {
	s := h.Session()
	if s == nil {
		return nil, ErrNotConnected
	}
	return s, nil
}

func (h *Handle) lookupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.LookupTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.LookupTimeout)
}

// Bootstrap runs the post-spawn session setup: each auth command is sent as
// chat with {name} replaced by the agent's username, then the movement
// profile is installed.
func (h *Handle) Bootstrap(authCommands []string, profile session.MovementProfile) error {
	s, err := h.live()
	if err != nil {
		return err
	}
	for _, tmpl := range authCommands {
		if err := s.Chat(strings.ReplaceAll(tmpl, "{name}", h.Name)); err != nil {
			return fmt.Errorf("sending auth command: %w", err)
		}
	}
	if err := s.Pathfinder().SetMovements(profile); err != nil {
		return fmt.Errorf("installing movement profile: %w", err)
	}
	return nil
}

// Chat sends a chat message.
func (h *Handle) Chat(text string) error {
	s, err := h.live()
	if err != nil {
		return err
	}
	return s.Chat(text)
}

// Teleport asks the server to move the agent through the chat command channel.
// The coordinates are passed through as typed by the operator.
func (h *Handle) Teleport(x, y, z string) error {
	return h.Chat(fmt.Sprintf("/tp %s %s %s", x, y, z))
}

// SetControl toggles a movement control.
func (h *Handle) SetControl(control session.Control, state bool) error {
	s, err := h.live()
	if err != nil {
		return err
	}
	return s.SetControl(control, state)
}

// Follow sets a goal to stay within FollowRange of the named player. The
// player lookup runs inside the returned Future; an unknown player resolves
// it with ErrPlayerNotFound.
func (h *Handle) Follow(ctx context.Context, player string, profile session.MovementProfile) (*Future, error) {
	s, err := h.live()
	if err != nil {
		return nil, err
	}

	return Go(ctx, func(ctx context.Context) error {
		lctx, cancel := h.lookupContext(ctx)
		target, err := s.PlayerEntity(lctx, player)
		cancel()
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrPlayerNotFound, player)
			}
			return fmt.Errorf("looking up player %s: %w", player, err)
		}

		pf := s.Pathfinder()
		if err := pf.SetMovements(profile); err != nil {
			return fmt.Errorf("installing movement profile: %w", err)
		}
		goal := session.FollowEntity{Target: target, Range: FollowRange}
		if err := pf.SetGoal(goal); err != nil {
			return fmt.Errorf("setting follow goal: %w", err)
		}

		h.mu.Lock()
		h.goal = goal
		h.mu.Unlock()
		return nil
	}), nil
}

// Stop clears the movement goal.
func (h *Handle) Stop() error {
	s, err := h.live()
	if err != nil {
		return err
	}
	if err := s.Pathfinder().SetGoal(nil); err != nil {
		return fmt.Errorf("clearing goal: %w", err)
	}

	h.mu.Lock()
	h.goal = nil
	h.mu.Unlock()
	return nil
}

// Position returns the agent's world position.
func (h *Handle) Position() (session.Vec3, error) {
	s, err := h.live()
	if err != nil {
		return session.Vec3{}, err
	}
	return s.Position(), nil
}

// Inventory returns the agent's inventory stacks.
func (h *Handle) Inventory() ([]session.Item, error) {
	s, err := h.live()
	if err != nil {
		return nil, err
	}
	return s.Inventory(), nil
}

// Look sets the view orientation and forces the update to the server.
func (h *Handle) Look(yaw, pitch float64) error {
	s, err := h.live()
	if err != nil {
		return err
	}
	return s.Look(yaw, pitch, true)
}

// Use triggers the held item's use action.
func (h *Handle) Use() error {
	s, err := h.live()
	if err != nil {
		return err
	}
	return s.ActivateItem()
}

// Attack strikes the nearest visible entity. The lookup runs inside the
// returned Future; when it resolves without error, *struck holds the target.
func (h *Handle) Attack(ctx context.Context, struck *session.Entity) (*Future, error) {
	s, err := h.live()
	if err != nil {
		return nil, err
	}

	return Go(ctx, func(ctx context.Context) error {
		lctx, cancel := h.lookupContext(ctx)
		target, err := s.NearestEntity(lctx)
		cancel()
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return ErrNoEntity
			}
			return fmt.Errorf("finding nearest entity: %w", err)
		}
		if err := s.Attack(target); err != nil {
			return err
		}
		if struck != nil {
			*struck = target
		}
		return nil
	}), nil
}

func (h *Handle) cursorBlock(ctx context.Context, s session.Session) (session.Block, error) {
	lctx, cancel := h.lookupContext(ctx)
	defer cancel()
	block, err := s.BlockAtCursor(lctx, CursorReach)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return session.Block{}, ErrNoBlock
		}
		return session.Block{}, fmt.Errorf("finding block at cursor: %w", err)
	}
	return block, nil
}

// Dig digs the block under the cursor. The cursor lookup runs inside the
// returned Future, which resolves with ErrNoBlock when nothing is in reach.
func (h *Handle) Dig(ctx context.Context) (*Future, error) {
	s, err := h.live()
	if err != nil {
		return nil, err
	}
	return Go(ctx, func(ctx context.Context) error {
		block, err := h.cursorBlock(ctx, s)
		if err != nil {
			return err
		}
		return s.Dig(ctx, block)
	}), nil
}

// Place puts the held block on top of the block under the cursor.
func (h *Handle) Place(ctx context.Context) (*Future, error) {
	s, err := h.live()
	if err != nil {
		return nil, err
	}
	return Go(ctx, func(ctx context.Context) error {
		ref, err := h.cursorBlock(ctx, s)
		if err != nil {
			return err
		}
		return s.PlaceBlock(ctx, ref, PlaceFace)
	}), nil
}

// Equip moves the first inventory stack named itemName to the hand.
func (h *Handle) Equip(ctx context.Context, itemName string) (*Future, error) {
	s, err := h.live()
	if err != nil {
		return nil, err
	}

	var item *session.Item
	for _, it := range s.Inventory() {
		if it.Name == itemName {
			item = &it
			break
		}
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemName)
	}

	return Go(ctx, func(ctx context.Context) error {
		if err := s.Equip(ctx, *item, session.HandSlot); err != nil {
			return err
		}
		h.mu.Lock()
		h.held = item
		h.mu.Unlock()
		return nil
	}), nil
}

// Craft resolves a recipe for itemName and crafts it amount times without a
// crafting table. Both steps run inside the returned Future; a missing
// recipe resolves it with ErrRecipeNotFound.
func (h *Handle) Craft(ctx context.Context, itemName string, amount int) (*Future, error) {
	if amount < 1 {
		return nil, fmt.Errorf("%w: amount %d", ErrInvalidArgument, amount)
	}
	s, err := h.live()
	if err != nil {
		return nil, err
	}

	return Go(ctx, func(ctx context.Context) error {
		lctx, cancel := h.lookupContext(ctx)
		recipe, err := s.Recipes().FindRecipe(lctx, itemName, 1)
		cancel()
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrRecipeNotFound, itemName)
			}
			return fmt.Errorf("finding recipe for %s: %w", itemName, err)
		}
		return s.Craft(ctx, recipe, amount)
	}), nil
}

// Disconnect ends the session. Removal from the Manager happens when the
// session reports it disconnected.
func (h *Handle) Disconnect(ctx context.Context, reason string) *Future {
	s, err := h.live()
	if err != nil {
		return Resolved(err)
	}
	return Go(ctx, func(context.Context) error {
		return s.End(reason)
	})
}
