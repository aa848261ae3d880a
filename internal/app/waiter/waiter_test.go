package waiter

import (
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/slashkit/internal/app/scheduler"
	"github.com/jose-valero/slashkit/internal/app/worker"
	"github.com/jose-valero/slashkit/internal/domain"
)

func newWaiter(t *testing.T) *Waiter {
	t.Helper()
	actions := worker.NewPool("actions", 4)
	timers := worker.NewPool("timers", 4)
	sched := scheduler.New(timers)
	t.Cleanup(func() {
		sched.Close()
		actions.Close()
		timers.Close()
	})
	return New(actions, sched)
}

func msg(user, content string) *domain.MessageEvent {
	return &domain.MessageEvent{Actor: domain.Actor{UserID: user, ChannelID: "c1"}, Content: content}
}

func TestFiresOnceForFirstMatch(t *testing.T) {
	w := newWaiter(t)

	// events before the registration never reach it
	assert.Equal(t, 0, w.Dispatch(msg("42", "early")))

	got := make(chan string, 4)
	r := WaitFor(w, func(e *domain.MessageEvent) bool { return e.Actor.UserID == "42" },
		func(e *domain.MessageEvent) { got <- e.Content })

	assert.Equal(t, 0, w.Dispatch(msg("7", "other user")))
	assert.Equal(t, 1, w.Dispatch(msg("42", "first")))
	assert.Equal(t, 0, w.Dispatch(msg("42", "second")))

	select {
	case c := <-got:
		assert.Equal(t, "first", c)
	case <-time.After(time.Second):
		t.Fatal("action did not run")
	}
	assert.True(t, r.Done())
	assert.Equal(t, 0, w.Pending())
	assert.Never(t, func() bool { return len(got) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestStayActiveFiresEveryTime(t *testing.T) {
	w := newWaiter(t)

	var n atomic.Int32
	r := WaitFor(w, nil, func(*domain.MessageEvent) { n.Add(1) }, StayActive())

	for i := 0; i < 3; i++ {
		w.Dispatch(msg("1", "x"))
	}
	assert.Eventually(t, func() bool { return n.Load() == 3 }, time.Second, 5*time.Millisecond)
	assert.False(t, r.Done())

	assert.True(t, r.Cancel())
	assert.Equal(t, 0, w.Dispatch(msg("1", "x")))
}

func TestConcurrentDispatchFiresOnce(t *testing.T) {
	w := newWaiter(t)

	var n atomic.Int32
	WaitFor(w, nil, func(*domain.MessageEvent) { n.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Dispatch(msg("1", "x"))
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load())
}

func TestInterfaceRegistrationsAfterConcreteOnes(t *testing.T) {
	w := newWaiter(t)

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	// registered in reverse specificity on purpose
	WaitFor(w, nil, func(any) { record("any") }, StayActive())
	WaitFor(w, nil, func(domain.Event) { record("event") }, StayActive())
	WaitFor(w, nil, func(domain.Component) { record("component") }, StayActive())
	WaitFor(w, nil, func(*domain.ButtonEvent) { record("button") }, StayActive())

	var matched []string
	for _, r := range w.candidates(reflect.TypeOf(&domain.ButtonEvent{})) {
		matched = append(matched, r.typ.String())
	}
	assert.Equal(t, []string{"*domain.ButtonEvent", "domain.Component", "domain.Event", "interface {}"}, matched)

	assert.Equal(t, 4, w.Dispatch(&domain.ButtonEvent{}))
	// a message event is not a component
	assert.Equal(t, 2, w.Dispatch(msg("1", "x")))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 6
	}, time.Second, 5*time.Millisecond)
}

func TestTimeoutRemovesAndCallsOnce(t *testing.T) {
	w := newWaiter(t)

	var timeouts, hits atomic.Int32
	r := WaitFor(w, nil, func(*domain.MessageEvent) { hits.Add(1) },
		WithTimeout(30*time.Millisecond, func() { timeouts.Add(1) }))

	assert.Eventually(t, r.Done, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, w.Dispatch(msg("1", "late")))
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), timeouts.Load())
	assert.Equal(t, int32(0), hits.Load())
}

func TestMatchCancelsTimeout(t *testing.T) {
	w := newWaiter(t)

	var timeouts atomic.Int32
	WaitFor(w, nil, func(*domain.MessageEvent) {}, WithTimeout(40*time.Millisecond, func() { timeouts.Add(1) }))

	require.Equal(t, 1, w.Dispatch(msg("1", "x")))
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), timeouts.Load())
}

func TestSuspendResumeAndRemoveByID(t *testing.T) {
	w := newWaiter(t)

	var n atomic.Int32
	WaitFor(w, nil, func(*domain.MessageEvent) { n.Add(1) }, WithID("s1"), StayActive(), WithOwner("42", "g1"))
	WaitFor(w, nil, func(*domain.MessageEvent) { n.Add(1) }, WithID("s1"), WithOwner("42", "g1"))
	WaitFor(w, nil, func(*domain.MessageEvent) {}, WithID("s2"), StayActive())

	assert.Equal(t, 2, w.Suspend("s1"))
	assert.Equal(t, 1, w.Dispatch(msg("1", "x")), "only s2 is listening")
	assert.Equal(t, 3, w.Pending())
	assert.Equal(t, 2, w.PendingFor("42"))

	assert.Equal(t, 2, w.Resume("s1"))
	assert.Equal(t, 3, w.Dispatch(msg("1", "x")))
	assert.Equal(t, 2, w.Pending(), "the single-shot s1 registration is gone")

	assert.Equal(t, 1, w.Remove("s1"))
	assert.Equal(t, 0, w.PendingByID("s1"))
	assert.Equal(t, 1, w.PendingByID("s2"))
}

func TestPanickingPredicateDoesNotMatch(t *testing.T) {
	w := newWaiter(t)

	WaitFor(w, func(*domain.MessageEvent) bool { panic("bad predicate") }, func(*domain.MessageEvent) {})
	assert.Equal(t, 0, w.Dispatch(msg("1", "x")))
	assert.Equal(t, 1, w.Pending())
}
