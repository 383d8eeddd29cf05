// ABOUTME: One agent's game session over a bridge websocket.
// ABOUTME: A single writer serializes frames; replies are matched to requests by id.

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/2389/coven-fleet/internal/session"
)

// maxCloseReason is the longest close reason a websocket close frame carries.
const maxCloseReason = 123

// RemoteError is an action failure reported by the bridge.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Op + ": " + e.Message
}

type outbound struct {
	frame Outgoing
	done  chan error // optional, receives the write result
}

// Session is a session.Session backed by a bridge connection.
type Session struct {
	username string
	conn     *websocket.Conn
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *slog.Logger

	ctx    context.Context // cancelled when the connection is gone
	cancel context.CancelFunc
	queue  chan outbound
	events chan session.Event
	closed chan struct{}

	closeOnce sync.Once
	ending    atomic.Bool
	ended     bool // an end event was delivered; read goroutine only

	mu      sync.RWMutex
	state   State
	pending map[string]chan *Incoming
}

var _ session.Session = (*Session)(nil)

func newSession(username string, conn *websocket.Conn, limiter *rate.Limiter, timeout time.Duration, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		username: username,
		conn:     conn,
		limiter:  limiter,
		timeout:  timeout,
		logger:   logger.With("username", username),
		ctx:      ctx,
		cancel:   cancel,
		queue:    make(chan outbound, 64),
		events:   make(chan session.Event, 16),
		closed:   make(chan struct{}),
		pending:  make(map[string]chan *Incoming),
	}
	go s.writeLoop()
	go s.readLoop()
	return s
}

func (s *Session) Username() string { return s.username }

func (s *Session) Events() <-chan session.Event { return s.events }

// writeLoop is the only goroutine writing to the connection. Chat frames
// wait on the limiter first, which delays but never reorders them.
func (s *Session) writeLoop() {
	for {
		select {
		case <-s.closed:
			return
		case out := <-s.queue:
			var err error
			if out.frame.Type == frameChat {
				err = s.limiter.Wait(s.ctx)
			}
			if err == nil {
				err = wsjson.Write(s.ctx, s.conn, out.frame)
			}
			if err != nil {
				s.logger.Debug("bridge write failed", "type", out.frame.Type, "op", out.frame.Op, "error", err)
			}
			if out.done != nil {
				out.done <- err
			}
		}
	}
}

func (s *Session) enqueue(frame Outgoing, done chan error) error {
	select {
	case <-s.closed:
		return session.ErrClosed
	default:
	}
	select {
	case s.queue <- outbound{frame: frame, done: done}:
		return nil
	case <-s.closed:
		return session.ErrClosed
	}
}

func (s *Session) readLoop() {
	for {
		var in Incoming
		if err := wsjson.Read(s.ctx, s.conn, &in); err != nil {
			s.finish(err)
			return
		}
		s.handle(&in)
	}
}

func (s *Session) handle(in *Incoming) {
	switch in.Type {
	case frameEvent:
		switch in.Event {
		case eventSpawn:
			s.events <- session.Event{Kind: session.EventConnected}
		case eventError:
			s.events <- session.Event{Kind: session.EventFailed, Reason: in.Reason}
		case eventEnd:
			if !s.ended {
				s.ended = true
				s.events <- session.Event{Kind: session.EventDisconnected, Reason: in.Reason}
			}
		default:
			s.logger.Debug("ignoring unknown bridge event", "event", in.Event)
		}
	case frameState:
		if in.State != nil {
			s.mu.Lock()
			s.state = *in.State
			s.mu.Unlock()
		}
	case frameResponse:
		s.handleResponse(in)
	default:
		s.logger.Debug("ignoring unknown bridge frame", "type", in.Type)
	}
}

// finish runs once on the read goroutine when the connection is gone.
func (s *Session) finish(err error) {
	orderly := s.ending.Load() || s.ended ||
		websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway
	if !orderly {
		s.logger.Warn("bridge connection lost", "error", err)
		s.events <- session.Event{Kind: session.EventFailed, Reason: err.Error()}
	}

	s.closeOnce.Do(func() { close(s.closed) })
	s.cancel()
	_ = s.conn.CloseNow()

	if !s.ended {
		s.ended = true
		s.events <- session.Event{Kind: session.EventDisconnected, Reason: closeReason(err)}
	}
	close(s.events)
}

func closeReason(err error) string {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}

// createRequest registers a pending request and returns the channel its
// reply will arrive on. The caller must call closeRequest.
func (s *Session) createRequest(requestID string) <-chan *Incoming {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan *Incoming, 1)
	s.pending[requestID] = ch
	return ch
}

func (s *Session) closeRequest(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, requestID)
}

func (s *Session) handleResponse(in *Incoming) {
	s.mu.RLock()
	ch, ok := s.pending[in.RequestID]
	s.mu.RUnlock()
	if !ok {
		s.logger.Debug("response for unknown request", "request_id", in.RequestID)
		return
	}
	// Non-blocking send; a duplicate reply is dropped.
	select {
	case ch <- in:
	default:
		s.logger.Warn("duplicate bridge response dropped", "request_id", in.RequestID)
	}
}

// request sends op and waits for its reply, decoding the result into out
// when out is non-nil.
func (s *Session) request(ctx context.Context, op string, args, out any) error {
	requestID := uuid.New().String()
	replies := s.createRequest(requestID)
	defer s.closeRequest(requestID)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	frame := Outgoing{Type: frameRequest, RequestID: requestID, Op: op, Args: args}
	if err := s.enqueue(frame, nil); err != nil {
		return err
	}

	select {
	case in := <-replies:
		switch {
		case in.NotFound:
			return session.ErrNotFound
		case in.Error != "":
			return &RemoteError{Op: op, Message: in.Error}
		}
		if out != nil && len(in.Result) > 0 {
			if err := json.Unmarshal(in.Result, out); err != nil {
				return fmt.Errorf("decoding %s result: %w", op, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	case <-s.closed:
		return session.ErrClosed
	}
}

// notify sends op without waiting for a reply.
func (s *Session) notify(op string, args any) error {
	return s.enqueue(Outgoing{Type: frameRequest, Op: op, Args: args}, nil)
}

func (s *Session) Chat(text string) error {
	return s.enqueue(Outgoing{Type: frameChat, Text: text}, nil)
}

func (s *Session) SetControl(control session.Control, state bool) error {
	return s.notify(OpControl, controlArgs{Control: control, State: state})
}

func (s *Session) Look(yaw, pitch float64, force bool) error {
	s.mu.Lock()
	s.state.Yaw, s.state.Pitch = yaw, pitch
	s.mu.Unlock()
	return s.notify(OpLook, lookArgs{Yaw: yaw, Pitch: pitch, Force: force})
}

func (s *Session) ActivateItem() error {
	return s.notify(OpActivateItem, nil)
}

func (s *Session) Attack(target session.Entity) error {
	return s.notify(OpAttack, entityArgs{EntityID: target.ID})
}

// Position returns the last position the bridge reported.
func (s *Session) Position() session.Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Position
}

// Inventory returns the last inventory the bridge reported.
func (s *Session) Inventory() []session.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]session.Item(nil), s.state.Items...)
}

func (s *Session) PlayerEntity(ctx context.Context, username string) (session.Entity, error) {
	var e session.Entity
	err := s.request(ctx, OpPlayerEntity, usernameArgs{Username: username}, &e)
	return e, err
}

func (s *Session) NearestEntity(ctx context.Context) (session.Entity, error) {
	var e session.Entity
	err := s.request(ctx, OpNearestEntity, nil, &e)
	return e, err
}

func (s *Session) BlockAtCursor(ctx context.Context, maxDistance float64) (session.Block, error) {
	var b session.Block
	err := s.request(ctx, OpBlockAtCursor, cursorArgs{MaxDistance: maxDistance}, &b)
	return b, err
}

func (s *Session) Dig(ctx context.Context, block session.Block) error {
	return s.request(ctx, OpDig, blockArgs{Block: block}, nil)
}

func (s *Session) PlaceBlock(ctx context.Context, reference session.Block, face session.Vec3) error {
	return s.request(ctx, OpPlaceBlock, placeArgs{Reference: reference, Face: face}, nil)
}

func (s *Session) Equip(ctx context.Context, item session.Item, destination string) error {
	return s.request(ctx, OpEquip, equipArgs{Item: item, Destination: destination}, nil)
}

func (s *Session) Craft(ctx context.Context, recipe session.Recipe, count int) error {
	return s.request(ctx, OpCraft, craftArgs{Recipe: recipe, Count: count}, nil)
}

func (s *Session) Pathfinder() session.Pathfinder { return pathfinder{s} }

func (s *Session) Recipes() session.RecipeResolver { return recipes{s} }

// End asks the bridge to leave the server and closes the connection. The
// session then reports EventDisconnected and closes Events.
func (s *Session) End(reason string) error {
	if !s.ending.CompareAndSwap(false, true) {
		return nil
	}

	done := make(chan error, 1)
	if err := s.enqueue(Outgoing{Type: frameEnd, Reason: reason}, done); err != nil {
		return err
	}
	select {
	case <-done:
	case <-s.closed:
	case <-time.After(s.timeout):
		s.logger.Warn("timed out flushing end frame")
	}

	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	if err := s.conn.Close(websocket.StatusNormalClosure, reason); err != nil {
		s.logger.Debug("closing bridge connection", "error", err)
	}
	return nil
}

type pathfinder struct{ s *Session }

func (p pathfinder) SetMovements(profile session.MovementProfile) error {
	return p.s.notify(OpSetMovements, movementArgs{Profile: profile})
}

func (p pathfinder) SetGoal(goal session.Goal) error {
	switch g := goal.(type) {
	case nil:
		return p.s.notify(OpSetGoal, goalArgs{})
	case session.FollowEntity:
		return p.s.notify(OpSetGoal, goalArgs{Goal: &goalSpec{
			Type:     "follow_entity",
			EntityID: g.Target.ID,
			Range:    g.Range,
		}})
	default:
		return fmt.Errorf("unsupported goal %T", goal)
	}
}

type recipes struct{ s *Session }

func (r recipes) FindRecipe(ctx context.Context, itemName string, count int) (session.Recipe, error) {
	var recipe session.Recipe
	err := r.s.request(ctx, OpFindRecipe, recipeArgs{Item: itemName, Count: count}, &recipe)
	return recipe, err
}
