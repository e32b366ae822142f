package fanout

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/rs/xid"
)

// Subscriber is one attached consumer. Write must not block indefinitely;
// transports enforce their own deadlines. A Write error detaches the
// subscriber.
type Subscriber interface {
	Write(msg []byte) error
}

// entry pairs a subscriber with its authentication state. Unauthenticated
// subscribers stay attached but receive nothing.
type entry struct {
	sub           Subscriber
	authenticated bool
}

// Hub is the process-wide subscriber set. All methods are safe for
// concurrent use. The lock covers only the subscriber map; Publish writes
// to subscribers without holding it, so a slow consumer never stalls
// producers or the other subscribers.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*entry
}

// NewHub returns an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With(slog.String("component", "fanout")),
		subs:   make(map[string]*entry),
	}
}

// Attach registers a subscriber in the unauthenticated state and returns
// its handle.
func (h *Hub) Attach(sub Subscriber) string {
	id := xid.New().String()

	h.mu.Lock()
	h.subs[id] = &entry{sub: sub}
	h.mu.Unlock()

	h.logger.Debug("subscriber attached", slog.String("subscriber", id))
	return id
}

// Authenticate flips the subscriber to the authenticated state. Unknown
// handles are ignored.
func (h *Hub) Authenticate(id string) {
	h.mu.Lock()
	if e, ok := h.subs[id]; ok {
		e.authenticated = true
	}
	h.mu.Unlock()
}

// Detach removes a subscriber. Safe to call for handles already removed by
// a failed write.
func (h *Hub) Detach(id string) {
	h.mu.Lock()
	_, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()

	if ok {
		h.logger.Debug("subscriber detached", slog.String("subscriber", id))
	}
}

// Publish delivers the message to every authenticated subscriber. The
// subscriber set is snapshotted under the lock and written without it;
// failed writers are evicted afterwards. Returns the number of subscribers
// reached.
func (h *Hub) Publish(msg Message) int {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal push message", slog.String("type", msg.Type), slog.Any("error", err))
		return 0
	}

	type target struct {
		id  string
		sub Subscriber
	}

	h.mu.Lock()
	targets := make([]target, 0, len(h.subs))
	for id, e := range h.subs {
		if e.authenticated {
			targets = append(targets, target{id: id, sub: e.sub})
		}
	}
	h.mu.Unlock()

	delivered := 0
	var failed []string
	for _, tgt := range targets {
		if err := tgt.sub.Write(payload); err != nil {
			failed = append(failed, tgt.id)
			h.logger.Warn("subscriber write failed, dropping",
				slog.String("subscriber", tgt.id),
				slog.Any("error", err))
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, id := range failed {
			delete(h.subs, id)
		}
		h.mu.Unlock()
	}
	return delivered
}

// Count returns the attached and authenticated subscriber counts.
func (h *Hub) Count() (attached, authenticated int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, e := range h.subs {
		attached++
		if e.authenticated {
			authenticated++
		}
	}
	return attached, authenticated
}
