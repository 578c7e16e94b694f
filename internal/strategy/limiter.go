package strategy

// Defaults applied when a limiter is built with non-positive tunables.
const (
	DefaultMaxRestarts = 3
	DefaultMaxTime     = 1

	// TickMillis is the coarsening unit for restart timestamps. Marks that
	// land in the same tick are treated as simultaneous.
	TickMillis = 100
)

// RateLimiter keeps, per child index, the timestamps of the most recent
// restarts and decides whether another restart fits the budget of at most
// maxR restarts spanning maxT ticks.
type RateLimiter struct {
	maxR int
	maxT int64
	log  map[int][]int64
}

func NewRateLimiter(maxR int, maxT int64) *RateLimiter {
	if maxR <= 0 {
		maxR = DefaultMaxRestarts
	}
	if maxT <= 0 {
		maxT = DefaultMaxTime
	}
	return &RateLimiter{maxR: maxR, maxT: maxT, log: make(map[int][]int64)}
}

func (r *RateLimiter) MaxRestarts() int { return r.maxR }
func (r *RateLimiter) MaxTime() int64   { return r.maxT }

// Mark records a restart of idx at nowMillis and reports whether the child
// should be restarted. Once maxR marks are held, the restart is refused when
// the newest and the oldest of the last maxR marks are at most maxT ticks apart.
func (r *RateLimiter) Mark(idx int, nowMillis int64) bool {
	now := floorDiv(nowMillis, TickMillis)
	entries := append(r.log[idx], now)
	if len(entries) > r.maxR {
		entries = entries[len(entries)-r.maxR:]
	}
	r.log[idx] = entries
	if len(entries) < r.maxR {
		return true
	}
	head := entries[len(entries)-1]
	tail := entries[0]
	return head-tail > r.maxT
}

// History returns a copy of the retained ticks for idx, oldest first.
func (r *RateLimiter) History(idx int) []int64 {
	return append([]int64(nil), r.log[idx]...)
}

// Forget drops the log kept for idx.
func (r *RateLimiter) Forget(idx int) { delete(r.log, idx) }

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
