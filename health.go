package websnap

import (
	"time"
)

// PoolStats is a point-in-time snapshot of pool occupancy.
type PoolStats struct {
	Browsers        int // live renderer processes
	MaxBrowsers     int
	ActiveContexts  int // leased contexts, pending reservations included
	TotalCapacity   int // MaxBrowsers x MaxContextsPerBrowser
	AvailableSlots  int // capacity minus active, counting unlaunched browsers
	PendingLaunches int
	OldestBrowser   time.Duration // age of the longest-lived process
	LongestLease    time.Duration // hold time of the oldest outstanding lease
}

// BrowserHealth describes one browser in a health report.
type BrowserHealth struct {
	ID             string
	Connected      bool
	ActiveContexts int
	Uses           int
	Age            time.Duration
	Idle           time.Duration
}

// HealthStatus is the report produced by CheckHealth.
type HealthStatus struct {
	Healthy       bool
	Browsers      []BrowserHealth
	StuckContexts int // leases held past twice the context timeout
}

// Stats returns a snapshot of pool occupancy.
func (p *BrowserPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	stats := PoolStats{
		Browsers:        len(p.browsers),
		MaxBrowsers:     p.cfg.MaxBrowsers,
		TotalCapacity:   p.cfg.MaxBrowsers * p.cfg.MaxContextsPerBrowser,
		PendingLaunches: p.pendingLaunches,
	}
	for _, b := range p.browsers {
		stats.ActiveContexts += b.active()
		if age := now.Sub(b.createdAt); age > stats.OldestBrowser {
			stats.OldestBrowser = age
		}
	}
	for _, lease := range p.leases {
		if held := now.Sub(lease.acquiredAt); held > stats.LongestLease {
			stats.LongestLease = held
		}
	}
	stats.AvailableSlots = stats.TotalCapacity - stats.ActiveContexts
	if stats.AvailableSlots < 0 {
		stats.AvailableSlots = 0
	}
	return stats
}

// CheckHealth probes every browser and flags leases held past twice
// the context timeout. The pool is healthy when every browser answers
// and nothing is stuck; an empty pool is healthy because browsers
// launch lazily.
func (p *BrowserPool) CheckHealth() HealthStatus {
	p.mu.Lock()
	type probe struct {
		inst *browserInstance
	}
	probes := make([]probe, 0, len(p.browsers))
	for _, id := range p.order {
		if b := p.browsers[id]; b != nil {
			probes = append(probes, probe{inst: b})
		}
	}
	// Auto-release detaches leases at ContextTimeout, so anything still
	// registered past twice that means a force-release close is wedged.
	now := time.Now()
	stuck := 0
	for _, lease := range p.leases {
		if now.Sub(lease.acquiredAt) > 2*p.cfg.ContextTimeout {
			stuck++
		}
	}
	p.mu.Unlock()

	status := HealthStatus{Healthy: true, StuckContexts: stuck}
	if stuck > 0 {
		status.Healthy = false
	}
	for _, pr := range probes {
		connected := pr.inst.handle.Connected()

		p.mu.Lock()
		h := BrowserHealth{
			ID:             pr.inst.id,
			Connected:      connected,
			ActiveContexts: pr.inst.active(),
			Uses:           pr.inst.uses,
			Age:            now.Sub(pr.inst.createdAt),
			Idle:           now.Sub(pr.inst.lastUsed),
		}
		p.mu.Unlock()

		if !connected {
			status.Healthy = false
		}
		status.Browsers = append(status.Browsers, h)
	}
	return status
}

// sweepLoop periodically removes dead, idle, and aged browsers.
func (p *BrowserPool) sweepLoop() {
	defer close(p.sweepDone)

	ticker := time.NewTicker(p.cfg.HealthSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep applies the health policy: disconnected browsers are dropped,
// idle ones are recycled when no context is outstanding, and browsers
// past the age cap are recycled even with outstanding contexts, which
// force-releases them.
func (p *BrowserPool) sweep() {
	now := time.Now()

	p.mu.Lock()
	candidates := make([]*browserInstance, 0, len(p.browsers))
	for _, id := range p.order {
		if b := p.browsers[id]; b != nil && !b.recycling {
			candidates = append(candidates, b)
		}
	}
	p.mu.Unlock()

	for _, b := range candidates {
		if !b.handle.Connected() {
			p.mu.Lock()
			b.recycling = true
			p.mu.Unlock()
			p.destroyBrowser(b, "disconnected")
			continue
		}

		p.mu.Lock()
		var reason string
		switch {
		case now.Sub(b.createdAt) > p.cfg.MaxBrowserAge:
			reason = "max age exceeded"
		case b.active() == 0 && now.Sub(b.lastUsed) > p.cfg.IdleTimeout:
			reason = "idle timeout"
		}
		if reason != "" {
			b.recycling = true
		}
		p.mu.Unlock()

		if reason != "" {
			p.destroyBrowser(b, reason)
		}
	}
}
