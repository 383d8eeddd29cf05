// ABOUTME: Console command variants and the pure parser that produces them.
// ABOUTME: Each verb is its own struct; Parse validates ids and arguments up front.

package dispatch

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Parse errors.
var (
	ErrEmptyCommand   = errors.New("empty command")
	ErrUnknownCommand = errors.New("unknown command")
)

// UsageError reports a command with missing or malformed arguments.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string {
	return "Usage: " + e.Usage
}

// Verb is a console command name.
type Verb string

const (
	VerbSay    Verb = "say"
	VerbExit   Verb = "exit"
	VerbList   Verb = "list"
	VerbJump   Verb = "jump"
	VerbFollow Verb = "follow"
	VerbStop   Verb = "stop"
	VerbTP     Verb = "tp"
	VerbPos    Verb = "pos"
	VerbDig    Verb = "dig"
	VerbPlace  Verb = "place"
	VerbEquip  Verb = "equip"
	VerbInv    Verb = "inv"
	VerbLook   Verb = "look"
	VerbCraft  Verb = "craft"
	VerbUse    Verb = "use"
	VerbAttack Verb = "attack"
	VerbHelp   Verb = "help"
)

var usages = map[Verb]string{
	VerbSay:    "say <msg> or say <id> <msg>",
	VerbExit:   "exit <id>|all",
	VerbJump:   "jump <id>",
	VerbFollow: "follow <id> <player>",
	VerbStop:   "stop <id>",
	VerbTP:     "tp <id> <x> <y> <z>",
	VerbPos:    "pos <id>",
	VerbDig:    "dig <id>",
	VerbPlace:  "place <id>",
	VerbEquip:  "equip <id> <item>",
	VerbInv:    "inv <id>",
	VerbLook:   "look <id> <yaw> <pitch>",
	VerbCraft:  "craft <id> <item> [n]",
	VerbUse:    "use <id>",
	VerbAttack: "attack <id>",
}

// Command is one parsed console line. The concrete types below are the only
// implementations.
type Command interface {
	Verb() Verb
	isCommand()
}

// Say sends Text as chat from agent ID, or from every agent when Broadcast.
type Say struct {
	Broadcast bool
	ID        int
	Text      string
}

// Exit ends agent ID's session, or every session when All.
type Exit struct {
	All bool
	ID  int
}

// List prints the registered agent ids.
type List struct{}

// Jump presses jump briefly.
type Jump struct{ ID int }

// Follow makes the agent follow Player.
type Follow struct {
	ID     int
	Player string
}

// Stop clears the agent's movement goal.
type Stop struct{ ID int }

// Teleport asks the server to move the agent. Coordinates are validated
// numbers kept as typed.
type Teleport struct {
	ID      int
	X, Y, Z string
}

// Pos prints the agent's position.
type Pos struct{ ID int }

// Dig breaks the block under the agent's cursor.
type Dig struct{ ID int }

// Place puts the held block on the block under the cursor.
type Place struct{ ID int }

// Equip moves the named inventory item to the hand.
type Equip struct {
	ID   int
	Item string
}

// Inv prints the agent's inventory.
type Inv struct{ ID int }

// Look sets the agent's view direction.
type Look struct {
	ID         int
	Yaw, Pitch float64
}

// Craft crafts Amount of Item.
type Craft struct {
	ID     int
	Item   string
	Amount int
}

// Use activates the held item.
type Use struct{ ID int }

// Attack strikes the nearest entity.
type Attack struct{ ID int }

// Help prints the command reference.
type Help struct{}

func (Say) Verb() Verb      { return VerbSay }
func (Exit) Verb() Verb     { return VerbExit }
func (List) Verb() Verb     { return VerbList }
func (Jump) Verb() Verb     { return VerbJump }
func (Follow) Verb() Verb   { return VerbFollow }
func (Stop) Verb() Verb     { return VerbStop }
func (Teleport) Verb() Verb { return VerbTP }
func (Pos) Verb() Verb      { return VerbPos }
func (Dig) Verb() Verb      { return VerbDig }
func (Place) Verb() Verb    { return VerbPlace }
func (Equip) Verb() Verb    { return VerbEquip }
func (Inv) Verb() Verb      { return VerbInv }
func (Look) Verb() Verb     { return VerbLook }
func (Craft) Verb() Verb    { return VerbCraft }
func (Use) Verb() Verb      { return VerbUse }
func (Attack) Verb() Verb   { return VerbAttack }
func (Help) Verb() Verb     { return VerbHelp }

func (Say) isCommand()      {}
func (Exit) isCommand()     {}
func (List) isCommand()     {}
func (Jump) isCommand()     {}
func (Follow) isCommand()   {}
func (Stop) isCommand()     {}
func (Teleport) isCommand() {}
func (Pos) isCommand()      {}
func (Dig) isCommand()      {}
func (Place) isCommand()    {}
func (Equip) isCommand()    {}
func (Inv) isCommand()      {}
func (Look) isCommand()     {}
func (Craft) isCommand()    {}
func (Use) isCommand()      {}
func (Attack) isCommand()   {}
func (Help) isCommand()     {}

// Parse turns a console line into a Command. The verb is case-insensitive
// and arguments are separated by whitespace; arguments past those a verb
// takes are ignored.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrEmptyCommand
	}
	verb := Verb(strings.ToLower(fields[0]))
	args := fields[1:]

	switch verb {
	case VerbSay:
		return parseSay(args)
	case VerbExit:
		if len(args) > 0 && strings.EqualFold(args[0], "all") {
			return Exit{All: true}, nil
		}
		id, err := targetID(verb, args)
		if err != nil {
			return nil, err
		}
		return Exit{ID: id}, nil
	case VerbList:
		return List{}, nil
	case VerbHelp:
		return Help{}, nil
	case VerbJump, VerbStop, VerbPos, VerbDig, VerbPlace, VerbInv, VerbUse, VerbAttack:
		id, err := targetID(verb, args)
		if err != nil {
			return nil, err
		}
		return idOnly(verb, id), nil
	case VerbFollow:
		if len(args) < 2 {
			return nil, usage(verb)
		}
		id, err := targetID(verb, args)
		if err != nil {
			return nil, err
		}
		return Follow{ID: id, Player: args[1]}, nil
	case VerbTP:
		if len(args) < 4 {
			return nil, usage(verb)
		}
		id, err := targetID(verb, args)
		if err != nil {
			return nil, err
		}
		for _, coord := range args[1:4] {
			if _, ok := parseNumber(coord); !ok {
				return nil, usage(verb)
			}
		}
		return Teleport{ID: id, X: args[1], Y: args[2], Z: args[3]}, nil
	case VerbEquip:
		if len(args) < 2 {
			return nil, usage(verb)
		}
		id, err := targetID(verb, args)
		if err != nil {
			return nil, err
		}
		return Equip{ID: id, Item: args[1]}, nil
	case VerbLook:
		if len(args) < 3 {
			return nil, usage(verb)
		}
		id, err := targetID(verb, args)
		if err != nil {
			return nil, err
		}
		yaw, ok := parseNumber(args[1])
		if !ok {
			return nil, usage(verb)
		}
		pitch, ok := parseNumber(args[2])
		if !ok {
			return nil, usage(verb)
		}
		return Look{ID: id, Yaw: yaw, Pitch: pitch}, nil
	case VerbCraft:
		if len(args) < 2 {
			return nil, usage(verb)
		}
		id, err := targetID(verb, args)
		if err != nil {
			return nil, err
		}
		amount := 1
		if len(args) > 2 {
			if n, err := strconv.Atoi(args[2]); err == nil && n > 0 {
				amount = n
			}
		}
		return Craft{ID: id, Item: args[1], Amount: amount}, nil
	}
	return nil, ErrUnknownCommand
}

// parseSay treats a leading agent id as the target only when a message
// follows it, so "say 5" broadcasts "5" while "say 5 diamonds!" is sent by
// agent 5 alone.
func parseSay(args []string) (Command, error) {
	if len(args) == 0 {
		return nil, usage(VerbSay)
	}
	if len(args) > 1 {
		if id, ok := parseID(args[0]); ok {
			return Say{ID: id, Text: strings.Join(args[1:], " ")}, nil
		}
	}
	return Say{Broadcast: true, Text: strings.Join(args, " ")}, nil
}

func idOnly(verb Verb, id int) Command {
	switch verb {
	case VerbJump:
		return Jump{ID: id}
	case VerbStop:
		return Stop{ID: id}
	case VerbPos:
		return Pos{ID: id}
	case VerbDig:
		return Dig{ID: id}
	case VerbPlace:
		return Place{ID: id}
	case VerbInv:
		return Inv{ID: id}
	case VerbUse:
		return Use{ID: id}
	default:
		return Attack{ID: id}
	}
}

func targetID(verb Verb, args []string) (int, error) {
	if len(args) == 0 {
		return 0, usage(verb)
	}
	id, ok := parseID(args[0])
	if !ok {
		return 0, usage(verb)
	}
	return id, nil
}

func parseID(s string) (int, bool) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func usage(verb Verb) *UsageError {
	return &UsageError{Usage: usages[verb]}
}

// Target returns the agent a command addresses and false for fleet-wide
// commands.
func Target(cmd Command) (int, bool) {
	switch c := cmd.(type) {
	case Say:
		return c.ID, !c.Broadcast
	case Exit:
		return c.ID, !c.All
	case Jump:
		return c.ID, true
	case Follow:
		return c.ID, true
	case Stop:
		return c.ID, true
	case Teleport:
		return c.ID, true
	case Pos:
		return c.ID, true
	case Dig:
		return c.ID, true
	case Place:
		return c.ID, true
	case Equip:
		return c.ID, true
	case Inv:
		return c.ID, true
	case Look:
		return c.ID, true
	case Craft:
		return c.ID, true
	case Use:
		return c.ID, true
	case Attack:
		return c.ID, true
	}
	return 0, false
}
