// Package identity holds the pool of client-identity strings rotated across
// outbound requests, plus the fixed browser header profile sent with them.
package identity

import (
	"math/rand/v2"
	"net/http"
)

// defaultAgents is the built-in identity set. Entries are plausible current
// desktop browser strings; the point is variety, not accuracy.
var defaultAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0",
}

// Pool is a fixed set of user-agent strings. Identities carry no state across
// calls; Pick is a uniform random draw per attempt.
type Pool struct {
	agents []string
}

// NewPool builds a pool from the given agents, falling back to the built-in
// set when none are configured.
func NewPool(agents []string) *Pool {
	if len(agents) == 0 {
		agents = defaultAgents
	}
	return &Pool{agents: agents}
}

// Pick returns a uniformly random identity from the pool.
func (p *Pool) Pick() string {
	return p.agents[rand.IntN(len(p.agents))]
}

// Size returns the number of identities in the pool.
func (p *Pool) Size() int {
	return len(p.agents)
}

// Contains reports whether agent is one of the pool's identities.
func (p *Pool) Contains(agent string) bool {
	for _, a := range p.agents {
		if a == agent {
			return true
		}
	}
	return false
}

// ApplyHeaders sets the fixed browser header profile on req. The User-Agent
// is the caller's per-attempt pick; everything else is constant so only the
// identity varies between attempts.
func ApplyHeaders(req *http.Request, userAgent, referer string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Connection", "keep-alive")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}
