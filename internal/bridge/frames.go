// ABOUTME: JSON frames exchanged with the session bridge over the websocket.
// ABOUTME: Outgoing frames drive the game client; incoming ones carry events, state and replies.

package bridge

import (
	"encoding/json"

	"github.com/2389/coven-fleet/internal/session"
)

// Frame types.
const (
	frameConnect  = "connect"
	frameChat     = "chat"
	frameRequest  = "request"
	frameEnd      = "end"
	frameEvent    = "event"
	frameState    = "state"
	frameResponse = "response"
)

// Event names carried by event frames.
const (
	eventSpawn = "spawn"
	eventEnd   = "end"
	eventError = "error"
)

// Request operations. Ops without a reply are sent without a request id.
const (
	OpControl       = "control"
	OpLook          = "look"
	OpActivateItem  = "activate_item"
	OpAttack        = "attack"
	OpSetMovements  = "set_movements"
	OpSetGoal       = "set_goal"
	OpPlayerEntity  = "player_entity"
	OpNearestEntity = "nearest_entity"
	OpBlockAtCursor = "block_at_cursor"
	OpDig           = "dig"
	OpPlaceBlock    = "place_block"
	OpEquip         = "equip"
	OpCraft         = "craft"
	OpFindRecipe    = "find_recipe"
)

// ConnectParams is the payload of a connect frame.
type ConnectParams struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Version  string `json:"version"`
}

// Outgoing is a frame sent to the bridge.
type Outgoing struct {
	Type      string         `json:"type"`
	Params    *ConnectParams `json:"params,omitempty"`
	Text      string         `json:"text,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Op        string         `json:"op,omitempty"`
	Args      any            `json:"args,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// Incoming is a frame received from the bridge.
type Incoming struct {
	Type      string          `json:"type"`
	Event     string          `json:"event,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	State     *State          `json:"state,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	NotFound  bool            `json:"not_found,omitempty"`
}

// State is the bridge's snapshot of the agent, pushed whenever it changes.
type State struct {
	Position session.Vec3   `json:"position"`
	Yaw      float64        `json:"yaw"`
	Pitch    float64        `json:"pitch"`
	Items    []session.Item `json:"items"`
}

type controlArgs struct {
	Control session.Control `json:"control"`
	State   bool            `json:"state"`
}

type lookArgs struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Force bool    `json:"force"`
}

type entityArgs struct {
	EntityID int `json:"entity_id"`
}

type usernameArgs struct {
	Username string `json:"username"`
}

type cursorArgs struct {
	MaxDistance float64 `json:"max_distance"`
}

type blockArgs struct {
	Block session.Block `json:"block"`
}

type placeArgs struct {
	Reference session.Block `json:"reference"`
	Face      session.Vec3  `json:"face"`
}

type equipArgs struct {
	Item        session.Item `json:"item"`
	Destination string       `json:"destination"`
}

type craftArgs struct {
	Recipe session.Recipe `json:"recipe"`
	Count  int            `json:"count"`
}

type recipeArgs struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type movementArgs struct {
	Profile session.MovementProfile `json:"profile"`
}

// goalSpec is the wire form of a session.Goal; a nil *goalSpec clears the goal.
type goalSpec struct {
	Type     string  `json:"type"`
	EntityID int     `json:"entity_id"`
	Range    float64 `json:"range"`
}

type goalArgs struct {
	Goal *goalSpec `json:"goal"`
}
