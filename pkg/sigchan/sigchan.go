package sigchan

// Chan carries wake-up notifications without data. Emits coalesce while the
// buffer is full.
type Chan struct {
	c chan struct{}
}

func New(bufferSize int) *Chan {
	return &Chan{
		c: make(chan struct{}, bufferSize),
	}
}

// Emit notifies without blocking.
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C is the receive side, for select.
func (c *Chan) C() <-chan struct{} {
	return c.c
}
