// ABOUTME: Interfaces and value types for the game session collaborator.
// ABOUTME: Client opens Sessions; Sessions expose capabilities and lifecycle events.

package session

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned when a Session is used after it ended.
var ErrClosed = errors.New("session closed")

// Params identifies the server and account for one connection.
type Params struct {
	Host     string
	Port     int
	Username string
	Version  string
}

// Addr returns host:port.
func (p Params) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// Client opens game sessions.
type Client interface {
	// Connect starts a session. A nil error means the transport is up; the
	// agent is in the world only once EventConnected arrives.
	Connect(ctx context.Context, params Params) (Session, error)
}

// Session is one live game connection.
type Session interface {
	Username() string
	Events() <-chan Event

	Chat(text string) error
	SetControl(control Control, state bool) error
	Look(yaw, pitch float64, force bool) error
	ActivateItem() error
	Attack(target Entity) error

	Position() Vec3
	Inventory() []Item

	PlayerEntity(ctx context.Context, username string) (Entity, error)
	NearestEntity(ctx context.Context) (Entity, error)
	BlockAtCursor(ctx context.Context, maxDistance float64) (Block, error)

	Dig(ctx context.Context, block Block) error
	PlaceBlock(ctx context.Context, reference Block, face Vec3) error
	Equip(ctx context.Context, item Item, destination string) error
	Craft(ctx context.Context, recipe Recipe, count int) error

	Pathfinder() Pathfinder
	Recipes() RecipeResolver

	// End closes the session. EventDisconnected follows on Events().
	End(reason string) error
}

// Pathfinder is the movement module attached to a Session.
type Pathfinder interface {
	SetMovements(profile MovementProfile) error
	// SetGoal replaces the current goal. A nil goal stops goal-directed
	// movement.
	SetGoal(goal Goal) error
}

// RecipeResolver finds crafting recipes available to a Session.
type RecipeResolver interface {
	// FindRecipe returns a recipe producing itemName that can be crafted
	// count times without a crafting table, or ErrNotFound.
	FindRecipe(ctx context.Context, itemName string, count int) (Recipe, error)
}

// EventKind identifies a lifecycle event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification from a Session.
type Event struct {
	Kind   EventKind
	Reason string
}

// Control names a movement control state.
type Control string

const (
	ControlForward Control = "forward"
	ControlBack    Control = "back"
	ControlLeft    Control = "left"
	ControlRight   Control = "right"
	ControlJump    Control = "jump"
	ControlSprint  Control = "sprint"
	ControlSneak   Control = "sneak"
)

// HandSlot is the equip destination for the main hand.
const HandSlot = "hand"

// Vec3 is a world position or offset.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) String() string {
	return fmt.Sprintf("%.2f, %.2f, %.2f", v.X, v.Y, v.Z)
}

// Entity is a visible world entity.
type Entity struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Position Vec3   `json:"position"`
}

// DisplayName returns the name to show the operator.
func (e Entity) DisplayName() string {
	switch {
	case e.Username != "":
		return e.Username
	case e.Name != "":
		return e.Name
	default:
		return "entity"
	}
}

// Block is a world block.
type Block struct {
	Name     string `json:"name"`
	Position Vec3   `json:"position"`
}

// Item is an inventory stack.
type Item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Slot  int    `json:"slot"`
}

// Recipe is an opaque crafting recipe handed back to Craft.
type Recipe struct {
	ID          string `json:"id"`
	Result      string `json:"result"`
	ResultCount int    `json:"result_count"`
}

// MovementProfile tunes how the pathfinder may move.
type MovementProfile struct {
	CanDig          bool `json:"can_dig"`
	AllowSprinting  bool `json:"allow_sprinting"`
	AllowParkour    bool `json:"allow_parkour"`
	MaxDropDown     int  `json:"max_drop_down"`
	AllowFreeMotion bool `json:"allow_free_motion"`
}

// DefaultMovements mirrors the stock pathfinder movement settings.
func DefaultMovements() MovementProfile {
	return MovementProfile{
		CanDig:         true,
		AllowSprinting: true,
		AllowParkour:   true,
		MaxDropDown:    4,
	}
}

// Goal is a pathfinding objective. FollowEntity is the only variant the
// fleet issues today.
type Goal interface {
	isGoal()
}

// FollowEntity keeps the agent within Range blocks of Target.
type FollowEntity struct {
	Target Entity
	Range  float64
}

func (FollowEntity) isGoal() {}
