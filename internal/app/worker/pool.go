// Package worker runs tasks on bounded, named pools.
package worker

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Pool is a bounded set of goroutines. Go blocks while the pool is full.
type Pool struct {
	name string
	g    errgroup.Group

	closed  atomic.Bool
	running atomic.Int64
	done    atomic.Int64
}

// NewPool creates a pool running at most size tasks at once. size <= 0 means
// unbounded.
func NewPool(name string, size int) *Pool {
	p := &Pool{name: name}
	if size > 0 {
		p.g.SetLimit(size)
	}
	return p
}

func (p *Pool) Name() string { return p.name }

// Go submits fn. Panics are recovered and logged. It returns false when the
// pool is already closed and fn was dropped.
func (p *Pool) Go(fn func()) bool {
	if p.closed.Load() {
		log.Warn().Str("pool", p.name).Msg("task dropped, pool closed")
		return false
	}
	p.g.Go(func() error {
		p.running.Add(1)
		defer func() {
			p.running.Add(-1)
			p.done.Add(1)
			if rec := recover(); rec != nil {
				log.Error().
					Str("pool", p.name).
					Str("panic", fmt.Sprint(rec)).
					Bytes("stack", debug.Stack()).
					Msg("task panicked")
			}
		}()
		fn()
		return nil
	})
	return true
}

// Close stops accepting tasks and waits for the running ones.
func (p *Pool) Close() {
	p.closed.Store(true)
	_ = p.g.Wait()
}

type Stats struct {
	Running int64 `json:"running"`
	Done    int64 `json:"done"`
}

func (p *Pool) Stats() Stats {
	return Stats{Running: p.running.Load(), Done: p.done.Load()}
}

// Pools groups the pools the engine uses.
type Pools struct {
	// Events drains inbound transport events.
	Events *Pool
	// Actions runs matched EventWaiter actions.
	Actions *Pool
	// Detached runs bookkeeping that must never delay a response.
	Detached *Pool
	// Timers runs scheduler callbacks.
	Timers *Pool
}

type Sizes struct {
	Events, Actions, Detached, Timers int
}

func NewPools(s Sizes) *Pools {
	return &Pools{
		Events:   NewPool("events", s.Events),
		Actions:  NewPool("actions", s.Actions),
		Detached: NewPool("detached", s.Detached),
		Timers:   NewPool("timers", s.Timers),
	}
}

// Close drains the pools, inbound events first.
func (ps *Pools) Close() {
	ps.Events.Close()
	ps.Actions.Close()
	ps.Timers.Close()
	ps.Detached.Close()
}

func (ps *Pools) Stats() map[string]Stats {
	return map[string]Stats{
		ps.Events.name:   ps.Events.Stats(),
		ps.Actions.name:  ps.Actions.Stats(),
		ps.Detached.name: ps.Detached.Stats(),
		ps.Timers.name:   ps.Timers.Stats(),
	}
}
