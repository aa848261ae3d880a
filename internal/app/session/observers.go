package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jose-valero/slashkit/internal/app/scheduler"
)

// Kind selects one of the observer indices.
type Kind int

const (
	// KindButton entries are keyed by message id.
	KindButton Kind = iota
	// KindSelect entries are keyed by message id.
	KindSelect
	// KindModal entries are keyed by the id of the user expected to submit,
	// modals have no message id before submission.
	KindModal
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindButton:
		return "button"
	case KindSelect:
		return "select"
	case KindModal:
		return "modal"
	}
	return "unknown"
}

// Entry is one outstanding follow-up expectation.
type Entry struct {
	SessionID string
	Command   string
	Kind      Kind
	Key       string
	Data      map[string]any
	// AuthorIDs restricts who may trigger the follow-up; nil means anyone.
	AuthorIDs  map[string]struct{}
	Persist    bool
	StayActive bool
	Created    time.Time

	ttl     time.Duration
	timeout atomic.Pointer[scheduler.Handle]
}

func (e *Entry) Allows(userID string) bool {
	if e.AuthorIDs == nil {
		return true
	}
	_, ok := e.AuthorIDs[userID]
	return ok
}

func (e *Entry) cancelTimeout() {
	if h := e.timeout.Load(); h != nil {
		h.Cancel()
	}
}

type ObserveOption func(*Entry)

// WithData attaches a bag that is handed back with the follow-up event.
func WithData(data map[string]any) ObserveOption {
	return func(e *Entry) { e.Data = data }
}

// WithAuthors restricts the follow-up to the given users.
func WithAuthors(userIDs ...string) ObserveOption {
	return func(e *Entry) {
		e.AuthorIDs = make(map[string]struct{}, len(userIDs))
		for _, id := range userIDs {
			e.AuthorIDs[id] = struct{}{}
		}
	}
}

// Persist marks the follow-up as resolvable from its Global Interaction Id
// alone. Expiry of a persisted entry never calls a timeout hook.
func Persist() ObserveOption {
	return func(e *Entry) { e.Persist = true }
}

// StayActive keeps the entry after a handled follow-up.
func StayActive() ObserveOption {
	return func(e *Entry) { e.StayActive = true }
}

// WithTimeout overrides the session's observer timeout for this entry.
func WithTimeout(d time.Duration) ObserveOption {
	return func(e *Entry) { e.ttl = d }
}

// Observers holds the three indices. Only atomic per-key operations are
// exposed.
type Observers struct {
	mu  sync.RWMutex
	idx [kindCount]map[string]*Entry
}

func NewObservers() *Observers {
	o := &Observers{}
	for k := range o.idx {
		o.idx[k] = make(map[string]*Entry)
	}
	return o
}

// Put stores e and returns the entry it replaced, if any.
func (o *Observers) Put(e *Entry) *Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev := o.idx[e.Kind][e.Key]
	o.idx[e.Kind][e.Key] = e
	return prev
}

func (o *Observers) PutIfAbsent(e *Entry) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.idx[e.Kind][e.Key]; ok {
		return false
	}
	o.idx[e.Kind][e.Key] = e
	return true
}

func (o *Observers) Get(kind Kind, key string) (*Entry, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.idx[kind][key]
	return e, ok
}

// CompareAndRemove removes e only if it is still the entry stored under its
// key.
func (o *Observers) CompareAndRemove(e *Entry) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.idx[e.Kind][e.Key] != e {
		return false
	}
	delete(o.idx[e.Kind], e.Key)
	return true
}

// RemoveSession removes and returns every entry owned by sessionID.
func (o *Observers) RemoveSession(sessionID string) []*Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*Entry
	for _, m := range o.idx {
		for key, e := range m {
			if e.SessionID == sessionID {
				out = append(out, e)
				delete(m, key)
			}
		}
	}
	return out
}

func (o *Observers) BySession(sessionID string) []*Entry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []*Entry
	for _, m := range o.idx {
		for _, e := range m {
			if e.SessionID == sessionID {
				out = append(out, e)
			}
		}
	}
	return out
}

func (o *Observers) HasSession(sessionID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, m := range o.idx {
		for _, e := range m {
			if e.SessionID == sessionID {
				return true
			}
		}
	}
	return false
}

func (o *Observers) Len(kind Kind) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.idx[kind])
}
