package server

import "sync/atomic"

// counter is a process-level served-request counter read by /stats.
type counter struct {
	n atomic.Int64
}

func (c *counter) inc() {
	c.n.Add(1)
}

func (c *counter) value() int64 {
	return c.n.Load()
}
