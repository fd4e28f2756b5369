package refresh

// DefaultCountdown is the number of visible steps before a refresh: 9..0,
// i.e. one refresh every ten seconds at the default step.
const DefaultCountdown = 9

// Countdown is the visible counter of an auto-refresh cycle.
type Countdown struct {
	max       int
	remaining int
}

// NewCountdown starts a countdown at max. Negative values are treated as 0,
// which refreshes on every step.
func NewCountdown(max int) *Countdown {
	if max < 0 {
		max = 0
	}
	return &Countdown{max: max, remaining: max}
}

// Tick advances one step. It returns true when the counter was already at
// zero, in which case a refresh is due and the counter restarts at max.
func (c *Countdown) Tick() bool {
	if c.remaining > 0 {
		c.remaining--
		return false
	}
	c.remaining = c.max
	return true
}

// Reset puts the counter back to max.
func (c *Countdown) Reset() {
	c.remaining = c.max
}

func (c *Countdown) Remaining() int { return c.remaining }

func (c *Countdown) Max() int { return c.max }
