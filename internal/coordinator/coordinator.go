package coordinator

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/train-seat-backend/internal/broadcast"
	"github.com/DoyleJ11/train-seat-backend/internal/inventory"
)

type Action string

const (
	ActionLock    Action = "lock"
	ActionConfirm Action = "confirm"
	ActionUnlock  Action = "unlock"
)

var ErrUnsupportedAction = errors.New("unsupported action")

type Intent struct {
	CoachNumber int
	SeatNumber  int
	Action      Action
}

func (i Intent) Ref() inventory.SeatRef {
	return inventory.SeatRef{CoachNumber: i.CoachNumber, SeatNumber: i.SeatNumber}
}

type Msg interface{ isCoordinatorMsg() }

type FromClient struct {
	ClientID string
	Intent   Intent
}

func (FromClient) isCoordinatorMsg() {}

type Join struct {
	ClientID string
	Outbox   chan broadcast.Update // where this client wants to receive updates
}

func (Join) isCoordinatorMsg() {}

type Leave struct{ ClientID string }

func (Leave) isCoordinatorMsg() {}

type Shutdown struct{}

func (Shutdown) isCoordinatorMsg() {}

type GetView struct {
	Reply chan View
}

func (GetView) isCoordinatorMsg() {}

type holdExpired struct {
	ref inventory.SeatRef
	gen uint64
}

func (holdExpired) isCoordinatorMsg() {}

type View struct {
	Version    int
	NumClients int
	NumHolds   int
	Stats      inventory.Stats
}

// Notifier hears about every seat that became booked. It is called from the
// coordinator goroutine and must not block.
type Notifier interface {
	SeatBooked(change inventory.Change, version int)
}

type Options struct {
	// HoldTTL > 0 reverts a locked seat to vacant once the hold has been
	// held that long without a confirm or unlock. Zero keeps locks forever.
	HoldTTL time.Duration
	// ReleaseOnDisconnect unlocks the seats a client still holds when it leaves.
	ReleaseOnDisconnect bool
	Notifier            Notifier
	Logger              *zap.Logger
}

type hold struct {
	clientID string
	gen      uint64
	timer    *time.Timer
}

// Coordinator applies client intents to the inventory and broadcasts every
// committed transition. A single goroutine runs the loop, so transitions and
// their broadcasts share one order.
type Coordinator struct {
	inbox     chan Msg
	inv       *inventory.Inventory
	observers *broadcast.Channel
	version   int
	holds     map[inventory.SeatRef]hold
	holdGen   uint64
	opts      Options
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	// sendMu guards stopped; Send holds it for reading so shutdown can wait
	// out in-flight sends before draining the inbox.
	sendMu  sync.RWMutex
	stopped bool
}

func New(parent context.Context, inv *inventory.Inventory, opts Options) *Coordinator {
	ctx, cancel := context.WithCancel(parent)

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	c := &Coordinator{
		inbox:     make(chan Msg, 64), // Small buffer
		inv:       inv,
		observers: broadcast.New(log),
		holds:     make(map[inventory.SeatRef]hold),
		opts:      opts,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go c.loop()
	return c
}

// Inbox exposes the raw inbox so tests or the WS layer can send messages.
func (c *Coordinator) Inbox() chan<- Msg { return c.inbox }

// Send queues m unless the coordinator has stopped. It never blocks past
// shutdown, and a message it accepted is either handled by the loop or, for a
// Join, answered with a closed outbox.
func (c *Coordinator) Send(m Msg) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.stopped {
		return false
	}
	select {
	case c.inbox <- m:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// View asks the loop for its current counters.
func (c *Coordinator) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !c.Send(GetView{Reply: reply}) {
		return View{}, context.Canceled
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-c.done:
		return View{}, context.Canceled
	}
}

// Done is closed once the loop has exited and every outbox is closed.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				c.observers.Add(msg.ClientID, msg.Outbox)
				snap := c.inv.Snapshot()
				c.observers.SendTo(msg.ClientID, broadcast.Update{Version: c.version, Snapshot: &snap})
				c.log.Info("observer joined",
					zap.String("client_id", msg.ClientID),
					zap.Int("version", c.version),
					zap.Int("observers", c.observers.Len()))

			case Leave:
				c.observers.Remove(msg.ClientID)
				if c.opts.ReleaseOnDisconnect {
					c.releaseHeldBy(msg.ClientID)
				}
				c.log.Info("observer left",
					zap.String("client_id", msg.ClientID),
					zap.Int("observers", c.observers.Len()))

			case FromClient:
				c.apply(msg.ClientID, msg.Intent)

			case holdExpired:
				h, ok := c.holds[msg.ref]
				if !ok || h.gen != msg.gen {
					break // stale fire: the hold was confirmed, unlocked or re-armed
				}
				c.log.Info("hold expired", zap.Stringer("seat", msg.ref), zap.String("client_id", h.clientID))
				c.transition(msg.ref, inventory.StatusLocked, inventory.StatusVacant, "")

			case GetView:
				msg.Reply <- View{
					Version:    c.version,
					NumClients: c.observers.Len(),
					NumHolds:   len(c.holds),
					Stats:      c.inv.Stats(),
				}

			case Shutdown:
				c.shutdown()
				return
			}
		}
	}
}

func (c *Coordinator) apply(clientID string, in Intent) {
	var from, to inventory.Status
	switch in.Action {
	case ActionLock:
		from, to = inventory.StatusVacant, inventory.StatusLocked
	case ActionConfirm:
		from, to = inventory.StatusLocked, inventory.StatusBooked
	case ActionUnlock:
		from, to = inventory.StatusLocked, inventory.StatusVacant
	default:
		c.observers.SendTo(clientID, broadcast.Update{Version: c.version, Err: ErrUnsupportedAction})
		return
	}

	ok, err := c.transition(in.Ref(), from, to, clientID)
	if err != nil {
		// Only the originator hears about a seat outside the grid.
		c.log.Debug("intent rejected",
			zap.String("client_id", clientID),
			zap.String("action", string(in.Action)),
			zap.Error(err))
		c.observers.SendTo(clientID, broadcast.Update{Version: c.version, Err: err})
		return
	}
	if !ok {
		c.log.Debug("intent ignored: seat not in source state",
			zap.String("client_id", clientID),
			zap.String("action", string(in.Action)),
			zap.Stringer("seat", in.Ref()))
	}
}

// transition commits one compare-and-set and, on success, updates hold
// bookkeeping and publishes the change to every observer.
func (c *Coordinator) transition(ref inventory.SeatRef, from, to inventory.Status, clientID string) (bool, error) {
	ok, err := c.inv.TryTransition(ref.CoachNumber, ref.SeatNumber, from, to)
	if err != nil || !ok {
		return false, err
	}

	c.version++
	change := inventory.Change{SeatRef: ref, Status: to}

	c.clearHold(ref)
	if to == inventory.StatusLocked {
		c.armHold(ref, clientID)
	}

	c.observers.Publish(broadcast.Update{Version: c.version, Change: &change})
	c.log.Info("seat transition",
		zap.Stringer("seat", ref),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("version", c.version))

	if to == inventory.StatusBooked && c.opts.Notifier != nil {
		c.opts.Notifier.SeatBooked(change, c.version)
	}
	return true, nil
}

func (c *Coordinator) armHold(ref inventory.SeatRef, clientID string) {
	if c.opts.HoldTTL <= 0 && !c.opts.ReleaseOnDisconnect {
		return
	}

	c.holdGen++
	h := hold{clientID: clientID, gen: c.holdGen}
	if c.opts.HoldTTL > 0 {
		gen := h.gen
		h.timer = time.AfterFunc(c.opts.HoldTTL, func() {
			select {
			case c.inbox <- holdExpired{ref: ref, gen: gen}:
			case <-c.ctx.Done():
			}
		})
	}
	c.holds[ref] = h
}

func (c *Coordinator) clearHold(ref inventory.SeatRef) {
	h, ok := c.holds[ref]
	if !ok {
		return
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	delete(c.holds, ref)
}

func (c *Coordinator) releaseHeldBy(clientID string) {
	var refs []inventory.SeatRef
	for ref, h := range c.holds {
		if h.clientID == clientID {
			refs = append(refs, ref)
		}
	}
	slices.SortFunc(refs, func(a, b inventory.SeatRef) int {
		if a.CoachNumber != b.CoachNumber {
			return a.CoachNumber - b.CoachNumber
		}
		return a.SeatNumber - b.SeatNumber
	})

	for _, ref := range refs {
		c.log.Info("releasing hold of departed client", zap.Stringer("seat", ref), zap.String("client_id", clientID))
		c.transition(ref, inventory.StatusLocked, inventory.StatusVacant, "")
	}
}

func (c *Coordinator) shutdown() {
	c.cancel() // unblocks any Send waiting on a full inbox
	c.sendMu.Lock()
	c.stopped = true
	c.sendMu.Unlock()

	for ref := range c.holds {
		c.clearHold(ref)
	}
	c.observers.Close() // Tell clients no more updates

	// Whatever is still queued will never be handled. Joiners get a closed
	// outbox so their connections do not wait forever.
	for {
		select {
		case m := <-c.inbox:
			if j, ok := m.(Join); ok {
				close(j.Outbox)
			}
		default:
			return
		}
	}
}
