// ABOUTME: Mock Client and Session implementations for testing
// ABOUTME: Records every capability call and lets tests script lookups and events

package session

import (
	"context"
	"sync"
)

// Action names accepted by MockSession.SetActionError.
const (
	ActionDig   = "dig"
	ActionPlace = "place"
	ActionEquip = "equip"
	ActionCraft = "craft"
	ActionEnd   = "end"
	ActionChat  = "chat"
)

// MockClient is an in-memory Client for testing.
type MockClient struct {
	mu       sync.Mutex
	attempts []Params
	sessions map[string]*MockSession
	failures map[string]error

	// AutoConnect makes every new session emit EventConnected right away.
	AutoConnect bool
	// Setup, when set, runs on every new session before it is returned.
	Setup func(*MockSession)
}

// NewMockClient creates a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		sessions: make(map[string]*MockSession),
		failures: make(map[string]error),
	}
}

// FailFor makes Connect return err for the given username.
func (c *MockClient) FailFor(username string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[username] = err
}

// Connect records the attempt and returns a new MockSession.
func (c *MockClient) Connect(ctx context.Context, params Params) (Session, error) {
	c.mu.Lock()
	c.attempts = append(c.attempts, params)
	if err, ok := c.failures[params.Username]; ok {
		c.mu.Unlock()
		return nil, err
	}
	s := NewMockSession(params.Username)
	c.sessions[params.Username] = s
	setup := c.Setup
	auto := c.AutoConnect
	c.mu.Unlock()

	if setup != nil {
		setup(s)
	}
	if auto {
		s.Emit(Event{Kind: EventConnected})
	}
	return s, nil
}

// Attempts returns a copy of every Connect call's params in call order.
func (c *MockClient) Attempts() []Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]Params, len(c.attempts))
	copy(result, c.attempts)
	return result
}

// Session returns the session created for username.
func (c *MockClient) Session(username string) (*MockSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[username]
	return s, ok
}

// ControlChange records one SetControl call.
type ControlChange struct {
	Control Control
	State   bool
}

// LookCall records one Look call.
type LookCall struct {
	Yaw   float64
	Pitch float64
	Force bool
}

// Placement records one PlaceBlock call.
type Placement struct {
	Reference Block
	Face      Vec3
}

// CraftCall records one Craft call.
type CraftCall struct {
	Recipe Recipe
	Count  int
}

// MockSession is an in-memory Session for testing.
type MockSession struct {
	mu       sync.Mutex
	username string
	events   chan Event
	closed   bool

	position Vec3
	items    []Item
	players  map[string]Entity
	nearest  *Entity
	cursor   *Block
	recipes  map[string]Recipe
	errs     map[string]error
	gate     chan struct{}
	lookup   chan struct{}

	chats       []string
	controls    []ControlChange
	looks       []LookCall
	movements   []MovementProfile
	goals       []Goal
	dug         []Block
	placed      []Placement
	equipped    []Item
	crafted     []CraftCall
	activations int
	attacks     []Entity
	endReasons  []string
}

// NewMockSession creates a MockSession for username.
func NewMockSession(username string) *MockSession {
	return &MockSession{
		username: username,
		events:   make(chan Event, 32),
		players:  make(map[string]Entity),
		recipes:  make(map[string]Recipe),
		errs:     make(map[string]error),
	}
}

// Emit delivers ev on Events(). It is a no-op once the session closed.
func (s *MockSession) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
	if ev.Kind == EventDisconnected {
		s.closed = true
		close(s.events)
	}
}

// SetPosition sets the value returned by Position.
func (s *MockSession) SetPosition(p Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = p
}

// SetItems sets the value returned by Inventory.
func (s *MockSession) SetItems(items ...Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]Item(nil), items...)
}

// AddPlayer makes PlayerEntity find e under its Username.
func (s *MockSession) AddPlayer(e Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[e.Username] = e
}

// SetNearest sets the entity NearestEntity returns.
func (s *MockSession) SetNearest(e Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nearest = &e
}

// SetCursor sets the block BlockAtCursor returns.
func (s *MockSession) SetCursor(b Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = &b
}

// AddRecipe makes FindRecipe resolve itemName to r.
func (s *MockSession) AddRecipe(itemName string, r Recipe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipes[itemName] = r
}

// SetActionError makes the named action fail with err.
func (s *MockSession) SetActionError(action string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[action] = err
}

// Hold makes Dig, PlaceBlock, Equip and Craft block until the returned
// release function is called.
func (s *MockSession) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// HoldLookups makes PlayerEntity, NearestEntity, BlockAtCursor and
// FindRecipe block until the returned release function is called.
func (s *MockSession) HoldLookups() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.lookup = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (s *MockSession) waitLookup(ctx context.Context) error {
	s.mu.Lock()
	gate := s.lookup
	s.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MockSession) Username() string { return s.username }

func (s *MockSession) Events() <-chan Event { return s.events }

func (s *MockSession) Chat(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs[ActionChat]; err != nil {
		return err
	}
	s.chats = append(s.chats, text)
	return nil
}

func (s *MockSession) SetControl(control Control, state bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls = append(s.controls, ControlChange{Control: control, State: state})
	return nil
}

func (s *MockSession) Look(yaw, pitch float64, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.looks = append(s.looks, LookCall{Yaw: yaw, Pitch: pitch, Force: force})
	return nil
}

func (s *MockSession) ActivateItem() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activations++
	return nil
}

func (s *MockSession) Attack(target Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attacks = append(s.attacks, target)
	return nil
}

func (s *MockSession) Position() Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *MockSession) Inventory() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.items...)
}

func (s *MockSession) PlayerEntity(ctx context.Context, username string) (Entity, error) {
	if err := s.waitLookup(ctx); err != nil {
		return Entity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.players[username]
	if !ok {
		return Entity{}, ErrNotFound
	}
	return e, nil
}

func (s *MockSession) NearestEntity(ctx context.Context) (Entity, error) {
	if err := s.waitLookup(ctx); err != nil {
		return Entity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nearest == nil {
		return Entity{}, ErrNotFound
	}
	return *s.nearest, nil
}

func (s *MockSession) BlockAtCursor(ctx context.Context, maxDistance float64) (Block, error) {
	if err := s.waitLookup(ctx); err != nil {
		return Block{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == nil {
		return Block{}, ErrNotFound
	}
	return *s.cursor, nil
}

func (s *MockSession) FindRecipe(ctx context.Context, itemName string, count int) (Recipe, error) {
	if err := s.waitLookup(ctx); err != nil {
		return Recipe{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipes[itemName]
	if !ok {
		return Recipe{}, ErrNotFound
	}
	return r, nil
}

// wait blocks while the session is held, then returns the scripted error
// for action.
func (s *MockSession) wait(ctx context.Context, action string) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[action]
}

func (s *MockSession) Dig(ctx context.Context, block Block) error {
	if err := s.wait(ctx, ActionDig); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dug = append(s.dug, block)
	return nil
}

func (s *MockSession) PlaceBlock(ctx context.Context, reference Block, face Vec3) error {
	if err := s.wait(ctx, ActionPlace); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placed = append(s.placed, Placement{Reference: reference, Face: face})
	return nil
}

func (s *MockSession) Equip(ctx context.Context, item Item, destination string) error {
	if err := s.wait(ctx, ActionEquip); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equipped = append(s.equipped, item)
	return nil
}

func (s *MockSession) Craft(ctx context.Context, recipe Recipe, count int) error {
	if err := s.wait(ctx, ActionCraft); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crafted = append(s.crafted, CraftCall{Recipe: recipe, Count: count})
	return nil
}

func (s *MockSession) Pathfinder() Pathfinder { return s }

func (s *MockSession) Recipes() RecipeResolver { return s }

func (s *MockSession) SetMovements(profile MovementProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements = append(s.movements, profile)
	return nil
}

func (s *MockSession) SetGoal(goal Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals = append(s.goals, goal)
	return nil
}

// End records the reason and, unless an end error is scripted, emits
// EventDisconnected and closes Events().
func (s *MockSession) End(reason string) error {
	s.mu.Lock()
	s.endReasons = append(s.endReasons, reason)
	err := s.errs[ActionEnd]
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.Emit(Event{Kind: EventDisconnected, Reason: reason})
	return nil
}

// Chats returns every chat message sent.
func (s *MockSession) Chats() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.chats...)
}

// Controls returns every SetControl call.
func (s *MockSession) Controls() []ControlChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ControlChange(nil), s.controls...)
}

// Looks returns every Look call.
func (s *MockSession) Looks() []LookCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LookCall(nil), s.looks...)
}

// Movements returns every movement profile installed.
func (s *MockSession) Movements() []MovementProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MovementProfile(nil), s.movements...)
}

// Goals returns every goal set, including nil clears.
func (s *MockSession) Goals() []Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Goal(nil), s.goals...)
}

// CurrentGoal returns the most recent goal, or nil.
func (s *MockSession) CurrentGoal() Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.goals) == 0 {
		return nil
	}
	return s.goals[len(s.goals)-1]
}

// Dug returns every block dug.
func (s *MockSession) Dug() []Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Block(nil), s.dug...)
}

// Placed returns every placement.
func (s *MockSession) Placed() []Placement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Placement(nil), s.placed...)
}

// Equipped returns every item equipped.
func (s *MockSession) Equipped() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.equipped...)
}

// Crafted returns every craft call.
func (s *MockSession) Crafted() []CraftCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CraftCall(nil), s.crafted...)
}

// Activations returns how many times ActivateItem was called.
func (s *MockSession) Activations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activations
}

// Attacks returns every attacked entity.
func (s *MockSession) Attacks() []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entity(nil), s.attacks...)
}

// EndReasons returns the reason of every End call.
func (s *MockSession) EndReasons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.endReasons...)
}

// Closed reports whether EventDisconnected has been emitted.
func (s *MockSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
