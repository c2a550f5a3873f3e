package flowengine

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	DefaultFlowPeriod  = 100 * time.Millisecond
	DefaultPulsePeriod = 50 * time.Millisecond

	pulseMinRadius = 10.0
	pulseMaxRadius = 25.0
	pulseStep      = 0.5
)

// FlowDash is the moving dash pattern of one arc. The pattern is
// (Length, Length) and Offset is its phase.
type FlowDash struct {
	Length float64
	Offset float64
}

func NewFlowDash(period float64) *FlowDash {
	return &FlowDash{Length: period}
}

// Step advances the phase by one unit, wrapping at one full dash+gap cycle.
func (f *FlowDash) Step() float64 {
	f.Offset = math.Mod(f.Offset+1, 2*f.Length)
	return f.Offset
}

// Pulse is the breathing ring drawn around the origin marker.
type Pulse struct {
	Radius  float64
	Opacity float64
	growing bool
}

func NewPulse() *Pulse {
	return &Pulse{Radius: pulseMinRadius, Opacity: 0.6, growing: true}
}

// Step moves the radius half a pixel, bouncing between 10 and 25, and flips
// the opacity with the direction.
func (p *Pulse) Step() {
	if p.growing {
		p.Radius += pulseStep
		if p.Radius >= pulseMaxRadius {
			p.Radius = pulseMaxRadius
			p.growing = false
		}
	} else {
		p.Radius -= pulseStep
		if p.Radius <= pulseMinRadius {
			p.Radius = pulseMinRadius
			p.growing = true
		}
	}
	if p.growing {
		p.Opacity = 0.6
	} else {
		p.Opacity = 0.3
	}
}

// Scope groups periodic tasks so they can be stopped together. Cancel does
// not return until every task goroutine has exited; a tick that raced the
// cancellation may still run once, so callbacks must check their owner is live.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	canceled bool
}

func NewScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancel(parent)
	return &Scope{ctx: ctx, cancel: cancel}
}

func (s *Scope) start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canceled {
		return false
	}
	s.wg.Add(1)
	return true
}

// Every runs fn each period until the scope is canceled.
func (s *Scope) Every(period time.Duration, fn func()) {
	if !s.start() {
		return
	}
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if s.ctx.Err() != nil {
					return
				}
				fn()
			}
		}
	}()
}

// After runs fn once after delay unless the scope is canceled first.
func (s *Scope) After(delay time.Duration, fn func()) {
	if !s.start() {
		return
	}
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-s.ctx.Done():
		case <-timer.C:
			if s.ctx.Err() == nil {
				fn()
			}
		}
	}()
}

func (s *Scope) Cancel() {
	s.mu.Lock()
	s.canceled = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Scope) Done() <-chan struct{} { return s.ctx.Done() }
