// Package player implements the engine's transport state machine: the
// worker loop that advances ticks through a band's mixer, driven by an
// order channel and reporting state transitions back on a state
// channel.
//
// Grounded on original_source/session/src/player.rs: the Order enum
// (Nil/Play/Record/Pause/Stop/SetTimeRange/LoadBand/ModifyBand/Exit),
// the receive loop (block for an order while not playing, poll between
// chunks while playing, and apply every order in the order it arrived),
// and the run() state machine matching spec.md's player transition table.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gndl/talkgraph/internal/logging"
	"github.com/gndl/talkgraph/internal/metrics"
	"github.com/gndl/talkgraph/internal/mixer"
)

// OrderKind enumerates the control messages a caller can send the player.
type OrderKind int

const (
	OrderNil OrderKind = iota
	OrderPlay
	OrderRecord
	OrderPause
	OrderStop
	OrderSetTimeRange
	OrderLoadBand
	OrderModifyBand
	OrderExit
)

func (k OrderKind) String() string {
	switch k {
	case OrderPlay:
		return "play"
	case OrderRecord:
		return "record"
	case OrderPause:
		return "pause"
	case OrderStop:
		return "stop"
	case OrderSetTimeRange:
		return "set_time_range"
	case OrderLoadBand:
		return "load_band"
	case OrderModifyBand:
		return "modify_band"
	case OrderExit:
		return "exit"
	default:
		return "nil"
	}
}

// Order is a single control-channel message.
type Order struct {
	Kind      OrderKind
	StartTick int64 // for SetTimeRange
	EndTick   int64 // for SetTimeRange; <0 means open-ended
	Modify    func() error
	Load      func() error
}

// State enumerates the player's transport states.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StateRecording
	StatePaused
	StateStopped
	StateExited
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateExited:
		return "exited"
	default:
		return "idle"
	}
}

// StateReport is one state-channel message: the player's new state and
// the tick it transitioned at.
type StateReport struct {
	State State
	Tick  int64
	Err   error
}

// ComeOuter is the minimal mixer surface the player drives each tick.
// ComeOut returns the number of samples actually produced; 0 signals
// the mixer has nothing left for this tick (§4.8's worker-loop rule).
type ComeOuter interface {
	ComeOut(tick int64, ln int) (int, error)
}

// Player owns the order/state channels and the run loop's tick cursor.
type Player struct {
	mixer      ComeOuter
	chunkSize  int
	orders     chan Order
	states     chan StateReport
	state      State
	tick       int64
	startTick  int64
	endTick    int64 // <0 means open-ended
	logger     *slog.Logger
}

// New builds a player over the given mixer with the given chunk size
// (samples pulled through the graph per tick).
func New(m ComeOuter, chunkSize int) *Player {
	return &Player{
		mixer:     m,
		chunkSize: chunkSize,
		orders:    make(chan Order, 16),
		states:    make(chan StateReport, 16),
		state:     StateIdle,
		endTick:   -1,
		logger:    logging.ForService("player"),
	}
}

// Orders returns the channel used to send control orders.
func (p *Player) Orders() chan<- Order { return p.orders }

// States returns the channel on which state transitions are reported.
func (p *Player) States() <-chan StateReport { return p.states }

// Send is a convenience wrapper around Orders() <- order.
func (p *Player) Send(o Order) { p.orders <- o }

// SetMixer swaps the mixer the player drives, used when OrderLoadBand
// replaces the running band with a freshly built one.
func (p *Player) SetMixer(m ComeOuter) { p.mixer = m }

// Run is the player's worker loop: block for the next order, apply it,
// then — while playing
// or recording — advance tick-by-tick through the mixer until an order
// arrives or the time range ends.
func (p *Player) Run(ctx context.Context) {
	defer p.report(StateExited, nil)

	for {
		order, ok := p.receive(ctx)
		if !ok {
			return
		}
		if order.Kind == OrderExit {
			return
		}
		if err := p.apply(order); err != nil {
			p.report(p.state, err)
			continue
		}

		if p.state != StatePlaying && p.state != StateRecording {
			continue
		}

		if !p.runUntilInterrupted(ctx) {
			return
		}
	}
}

// receive blocks for the next order and returns it; queued orders are
// handed over one at a time, in the order they arrived.
func (p *Player) receive(ctx context.Context) (Order, bool) {
	select {
	case o := <-p.orders:
		return o, true
	case <-ctx.Done():
		return Order{}, false
	}
}

func (p *Player) apply(o Order) error {
	switch o.Kind {
	case OrderNil:
		return nil
	case OrderPlay:
		p.setState(StatePlaying)
	case OrderRecord:
		p.setState(StateRecording)
	case OrderPause:
		p.setState(StatePaused)
	case OrderStop:
		p.tick = p.startTick
		p.setState(StateStopped)
	case OrderSetTimeRange:
		p.startTick, p.endTick = o.StartTick, o.EndTick
		p.tick = p.startTick
	case OrderLoadBand:
		if o.Load != nil {
			if err := o.Load(); err != nil {
				return fmt.Errorf("player: load band: %w", err)
			}
		}
		p.tick = p.startTick
		p.setState(StateStopped)
	case OrderModifyBand:
		if o.Modify != nil {
			if err := o.Modify(); err != nil {
				return fmt.Errorf("player: modify band: %w", err)
			}
		}
	default:
		return fmt.Errorf("player: unknown order kind %v", o.Kind)
	}
	return nil
}

// runUntilInterrupted advances the tick (a sample-count timestamp, per
// the glossary) through the mixer, one chunk at a time, until a new
// order preempts playback, the mixer runs dry, or the context is
// cancelled. Returns false when the loop should exit entirely (context
// cancellation).
//
// Mirrors §4.8's worker-loop pseudocode: wrap tick to startTick if the
// time range was already exhausted, shorten the requested length to
// whatever remains before endTick, pull the mixer, and advance tick by
// the length it actually produced rather than by one — a mixer that
// produces fewer samples than asked (or zero) reports that honestly
// instead of the loop assuming a full chunk landed.
func (p *Player) runUntilInterrupted(ctx context.Context) bool {
	for {
		select {
		case o := <-p.orders:
			if o.Kind == OrderExit {
				return false
			}
			if err := p.apply(o); err != nil {
				p.report(p.state, err)
				return true
			}
			if p.state != StatePlaying && p.state != StateRecording {
				return true
			}
		case <-ctx.Done():
			return false
		default:
			if p.endTick >= 0 && p.tick >= p.endTick {
				p.tick = p.startTick
			}

			length := p.chunkSize
			if p.endTick >= 0 {
				if remain := p.endTick - p.tick; int(remain) < length {
					length = int(remain)
				}
			}
			if length <= 0 {
				p.tick = p.startTick
				p.setState(StateStopped)
				return true
			}

			start := time.Now()
			ln, err := p.mixer.ComeOut(p.tick, length)
			metrics.TickDurationSeconds.Observe(time.Since(start).Seconds())
			if err != nil {
				p.report(p.state, fmt.Errorf("player: tick %d: %w", p.tick, err))
				p.setState(StateStopped)
				return true
			}
			if ln == 0 {
				p.tick = p.startTick
				p.setState(StateStopped)
				return true
			}

			p.tick += int64(ln)
			if p.endTick >= 0 && p.tick >= p.endTick {
				p.tick = p.startTick
			}
			metrics.TicksTotal.Inc()
			metrics.PlayerTick.Set(float64(p.tick))
			p.reportTick()
		}
	}
}

func (p *Player) setState(s State) {
	p.state = s
	metrics.SetPlayerState([]string{"idle", "playing", "recording", "paused", "stopped", "exited"}, s.String())
	p.report(s, nil)
}

func (p *Player) report(s State, err error) {
	select {
	case p.states <- StateReport{State: s, Tick: p.tick, Err: err}:
	default:
		p.logger.Warn("state channel full, dropping report", "state", s)
	}
}

func (p *Player) reportTick() {
	select {
	case p.states <- StateReport{State: p.state, Tick: p.tick}:
	default:
	}
}

// CurrentState reports the player's last-known state and tick, safe to
// call from outside the run loop's goroutine only after it has exited,
// or via the state channel otherwise — exposed for tests that drive
// apply()/runUntilInterrupted() deterministically without goroutines.
func (p *Player) CurrentState() (State, int64) { return p.state, p.tick }
