package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jose-valero/slashkit/internal/app/worker"
)

func TestScheduleFiresOnce(t *testing.T) {
	s := New(worker.NewPool("timers", 4))
	defer s.Close()

	var n atomic.Int32
	h := s.Schedule(20*time.Millisecond, func() { n.Add(1) })

	assert.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load())
	assert.True(t, h.Fired())
	assert.False(t, h.Cancel(), "cancel after firing must report false")
	assert.Equal(t, 0, s.Pending())
}

func TestCancelPreventsFiring(t *testing.T) {
	s := New(nil)
	defer s.Close()

	var n atomic.Int32
	h := s.Schedule(30*time.Millisecond, func() { n.Add(1) })
	assert.True(t, h.Cancel())
	assert.False(t, h.Cancel())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), n.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestRescheduleExtends(t *testing.T) {
	s := New(nil)
	defer s.Close()

	var n atomic.Int32
	fire := func() { n.Add(1) }

	h := s.Schedule(200*time.Millisecond, fire)
	time.Sleep(100 * time.Millisecond)
	h = s.Reschedule(h, 200*time.Millisecond, fire)

	// the original deadline passes without firing
	time.Sleep(140 * time.Millisecond)
	assert.Equal(t, int32(0), n.Load())

	assert.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, h.Fired())
}

func TestConcurrentRescheduleFiresOnce(t *testing.T) {
	s := New(worker.NewPool("timers", 8))
	defer s.Close()

	var n atomic.Int32
	fire := func() { n.Add(1) }

	var mu sync.Mutex
	h := s.Schedule(200*time.Millisecond, fire)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu.Lock()
			h = s.Reschedule(h, 200*time.Millisecond, fire)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return n.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load())
}

func TestCloseCancelsPending(t *testing.T) {
	s := New(nil)

	var n atomic.Int32
	s.Schedule(20*time.Millisecond, func() { n.Add(1) })
	s.Schedule(20*time.Millisecond, func() { n.Add(1) })
	assert.Equal(t, 2, s.Pending())

	s.Close()
	assert.Equal(t, 0, s.Pending())
	assert.False(t, s.Schedule(time.Millisecond, func() { n.Add(1) }).Active())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), n.Load())
}
