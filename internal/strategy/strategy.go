package strategy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrUnimplemented = errors.New("restart strategy is not implemented")

// Supervisor is the part of the supervisor a strategy drives. Calls are made
// from the supervisor's control loop, so implementations must not block on it.
type Supervisor interface {
	// StartChild restarts an existing stopped or restarting slot.
	StartChild(idx int) error
	RestartChild(idx int) error
	// Indices lists occupied slots in ascending order.
	Indices() []int
	EmitError(err error)
}

// Strategy decides what to restart after a child has stopped.
type Strategy interface {
	Kind() Kind
	Process(idx int)
	Limiter() *RateLimiter
}

// Kind names a restart strategy variant.
type Kind string

const (
	KindBase       Kind = "base"
	KindNever      Kind = "never"
	KindOneForOne  Kind = "one_for_one"
	KindOneForAll  Kind = "one_for_all"
	KindRestForOne Kind = "rest_for_one"
)

// ParseKind accepts snake, kebab, and camel spellings ("one_for_one",
// "one-for-one", "OneForOne").
func ParseKind(s string) (Kind, error) {
	n := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.TrimSpace(s)))
	switch n {
	case "", "oneforone":
		return KindOneForOne, nil
	case "never":
		return KindNever, nil
	case "oneforall":
		return KindOneForAll, nil
	case "restforone":
		return KindRestForOne, nil
	}
	return "", fmt.Errorf("unknown restart strategy %q", s)
}

// Config carries the tunables shared by all variants.
type Config struct {
	MaxRestarts int   // maxR
	MaxTime     int64 // maxT, in ticks of TickMillis
	// Now defaults to time.Now.
	Now func() time.Time
	// OnThrottle, when set, is called for every index the limiter refused.
	OnThrottle func(idx int)
}

type base struct {
	sup     Supervisor
	limiter *RateLimiter
	now     func() time.Time
	onThr   func(int)
}

func newBase(sup Supervisor, cfg Config) base {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return base{sup: sup, limiter: NewRateLimiter(cfg.MaxRestarts, cfg.MaxTime), now: now, onThr: cfg.OnThrottle}
}

func (b *base) Limiter() *RateLimiter { return b.limiter }

func (b *base) mark(idx int, nowMillis int64) bool {
	if b.limiter.Mark(idx, nowMillis) {
		return true
	}
	if b.onThr != nil {
		b.onThr(idx)
	}
	return false
}

// restartFrom marks and restarts every occupied index >= from, highest first.
func (b *base) restartFrom(from int) {
	now := b.now().UnixMilli()
	indices := b.sup.Indices()
	for i := len(indices) - 1; i >= 0; i-- {
		idx := indices[i]
		if idx < from {
			break
		}
		if !b.mark(idx, now) {
			continue
		}
		if err := b.sup.RestartChild(idx); err != nil {
			b.sup.EmitError(err)
		}
	}
}

// New builds the strategy named by kind.
func New(kind Kind, sup Supervisor, cfg Config) (Strategy, error) {
	switch kind {
	case KindBase:
		return &Base{base: newBase(sup, cfg)}, nil
	case KindNever:
		return &Never{base: newBase(sup, cfg)}, nil
	case KindOneForOne:
		return &OneForOne{base: newBase(sup, cfg)}, nil
	case KindOneForAll:
		return &OneForAll{base: newBase(sup, cfg)}, nil
	case KindRestForOne:
		return &RestForOne{base: newBase(sup, cfg)}, nil
	}
	return nil, fmt.Errorf("unknown restart strategy %q", kind)
}

// Base reports ErrUnimplemented for every stop. It exists to detect a
// supervisor wired without a real policy.
type Base struct{ base }

func (s *Base) Kind() Kind { return KindBase }

func (s *Base) Process(int) { s.sup.EmitError(ErrUnimplemented) }

// Never leaves stopped children down.
type Never struct{ base }

func (s *Never) Kind() Kind { return KindNever }

func (s *Never) Process(int) {}

// OneForOne restarts only the child that stopped.
type OneForOne struct{ base }

func (s *OneForOne) Kind() Kind { return KindOneForOne }

func (s *OneForOne) Process(idx int) {
	if !s.mark(idx, s.now().UnixMilli()) {
		return
	}
	if err := s.sup.StartChild(idx); err != nil {
		s.sup.EmitError(err)
	}
}

// OneForAll restarts every child, highest index first.
type OneForAll struct{ base }

func (s *OneForAll) Kind() Kind { return KindOneForAll }

func (s *OneForAll) Process(int) { s.restartFrom(0) }

// RestForOne restarts the stopped child and every child after it, highest
// index first. Earlier children are left alone.
type RestForOne struct{ base }

func (s *RestForOne) Kind() Kind { return KindRestForOne }

func (s *RestForOne) Process(idx int) { s.restartFrom(idx) }
