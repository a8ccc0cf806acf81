package broadcast

import (
	"go.uber.org/zap"

	"github.com/DoyleJ11/train-seat-backend/internal/inventory"
)

// Update is one message for an observer. Exactly one of Snapshot, Change or
// Err is set.
type Update struct {
	Version  int
	Snapshot *inventory.Train
	Change   *inventory.Change
	Err      error
}

// Channel is the registry of connected observers. It is not safe for
// concurrent use: the coordinator goroutine owns it, so publishes are
// serialized with the transitions that produce them.
type Channel struct {
	outboxes map[string]chan Update
	log      *zap.Logger
}

func New(log *zap.Logger) *Channel {
	return &Channel{
		outboxes: make(map[string]chan Update),
		log:      log,
	}
}

func (c *Channel) Add(id string, out chan Update) {
	if old, ok := c.outboxes[id]; ok && old != out {
		close(old)
	}
	c.outboxes[id] = out
}

// Remove forgets the observer and closes its outbox. It reports whether the
// observer was still registered.
func (c *Channel) Remove(id string) bool {
	out, ok := c.outboxes[id]
	if !ok {
		return false
	}
	close(out)
	delete(c.outboxes, id)
	return true
}

func (c *Channel) Len() int { return len(c.outboxes) }

// SendTo delivers u to a single observer only.
func (c *Channel) SendTo(id string, u Update) bool {
	out, ok := c.outboxes[id]
	if !ok {
		return false
	}
	return c.deliver(id, out, u)
}

// Publish delivers u to every observer, the originator included.
func (c *Channel) Publish(u Update) {
	for id, out := range c.outboxes {
		c.deliver(id, out, u)
	}
}

func (c *Channel) Close() {
	for id := range c.outboxes {
		c.Remove(id)
	}
}

func (c *Channel) deliver(id string, out chan Update, u Update) bool {
	select {
	case out <- u:
		return true
	default:
		// Observer is slow/full. It would miss this update, so drop it; it
		// resyncs with a fresh snapshot when it reconnects.
		c.log.Warn("dropping slow observer", zap.String("client_id", id), zap.Int("version", u.Version))
		c.Remove(id)
		return false
	}
}
