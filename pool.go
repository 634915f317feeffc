package websnap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alnah/go-websnap/internal/process"
)

// Pool sizing and timing defaults.
const (
	DefaultMaxBrowsers           = 2
	DefaultMaxContextsPerBrowser = 4
	DefaultContextTimeout        = 2 * time.Minute
	DefaultRecycleAfterUses      = 50
	DefaultHealthSweepInterval   = 30 * time.Second
	DefaultAcquireTimeout        = 10 * time.Second
	DefaultAcquirePollInterval   = 100 * time.Millisecond
	DefaultIdleTimeout           = 5 * time.Minute
	DefaultMaxBrowserAge         = 1 * time.Hour
	DefaultShutdownGrace         = 15 * time.Second
)

// closeGrace bounds how long a native close call may hang before the
// owning process group is killed.
const closeGrace = 5 * time.Second

// PoolConfig is immutable after construction.
type PoolConfig struct {
	MaxBrowsers           int           // renderer process cap
	MaxContextsPerBrowser int           // isolated contexts per process
	ContextTimeout        time.Duration // per-lease auto-release timer
	RecycleAfterUses      int           // recycle a browser after N renders
	HealthSweepInterval   time.Duration
	AcquireTimeout        time.Duration // bounded wait before PoolExhausted
	AcquirePollInterval   time.Duration
	IdleTimeout           time.Duration // recycle idle browsers past this
	MaxBrowserAge         time.Duration // age out long-lived processes
	ShutdownGrace         time.Duration
}

// DefaultPoolConfig returns production defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxBrowsers:           DefaultMaxBrowsers,
		MaxContextsPerBrowser: DefaultMaxContextsPerBrowser,
		ContextTimeout:        DefaultContextTimeout,
		RecycleAfterUses:      DefaultRecycleAfterUses,
		HealthSweepInterval:   DefaultHealthSweepInterval,
		AcquireTimeout:        DefaultAcquireTimeout,
		AcquirePollInterval:   DefaultAcquirePollInterval,
		IdleTimeout:           DefaultIdleTimeout,
		MaxBrowserAge:         DefaultMaxBrowserAge,
		ShutdownGrace:         DefaultShutdownGrace,
	}
}

// withDefaults fills zero fields from DefaultPoolConfig.
func (c PoolConfig) withDefaults() PoolConfig {
	def := DefaultPoolConfig()
	if c.MaxBrowsers == 0 {
		c.MaxBrowsers = def.MaxBrowsers
	}
	if c.MaxContextsPerBrowser == 0 {
		c.MaxContextsPerBrowser = def.MaxContextsPerBrowser
	}
	if c.ContextTimeout == 0 {
		c.ContextTimeout = def.ContextTimeout
	}
	if c.RecycleAfterUses == 0 {
		c.RecycleAfterUses = def.RecycleAfterUses
	}
	if c.HealthSweepInterval == 0 {
		c.HealthSweepInterval = def.HealthSweepInterval
	}
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = def.AcquireTimeout
	}
	if c.AcquirePollInterval == 0 {
		c.AcquirePollInterval = def.AcquirePollInterval
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.MaxBrowserAge == 0 {
		c.MaxBrowserAge = def.MaxBrowserAge
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = def.ShutdownGrace
	}
	return c
}

// Validate rejects nonsensical configurations.
func (c PoolConfig) Validate() error {
	if c.MaxBrowsers < 0 || c.MaxContextsPerBrowser < 0 || c.RecycleAfterUses < 0 {
		return fmt.Errorf("%w: negative counts", ErrInvalidPoolConfig)
	}
	for _, d := range []time.Duration{
		c.ContextTimeout, c.HealthSweepInterval, c.AcquireTimeout,
		c.AcquirePollInterval, c.IdleTimeout, c.MaxBrowserAge, c.ShutdownGrace,
	} {
		if d < 0 {
			return fmt.Errorf("%w: negative duration", ErrInvalidPoolConfig)
		}
	}
	return nil
}

// browserInstance is one renderer process and its bookkeeping.
type browserInstance struct {
	id        string
	handle    browserHandle
	contexts  map[string]struct{} // lease ids attributed to this browser
	pending   int                 // reserved slots awaiting context creation
	uses      int                 // renders served
	createdAt time.Time
	lastUsed  time.Time
	recycling bool
}

// active returns occupied plus reserved context slots.
func (b *browserInstance) active() int {
	return len(b.contexts) + b.pending
}

// contextLease is one outstanding claim on an execution context.
type contextLease struct {
	id         string
	browserID  string
	page       PageHandle
	acquiredAt time.Time
	timer      *time.Timer
}

// BrowserPool owns a bounded set of renderer processes and hands out
// time-limited context leases. All bookkeeping happens in short
// non-blocking critical sections; engine I/O never runs under the lock,
// so state is re-checked after every engine call rather than assumed.
type BrowserPool struct {
	cfg    PoolConfig
	engine browserEngine
	logger *zap.Logger

	mu              sync.Mutex
	browsers        map[string]*browserInstance
	order           []string // browser ids in creation order, for first-fit
	leases          map[string]*contextLease
	pendingLaunches int
	closed          bool

	done      chan struct{}
	sweepDone chan struct{}
}

// PoolOption configures a BrowserPool.
type PoolOption func(*BrowserPool)

// WithPoolLogger sets the structured logger. Default is a no-op logger.
func WithPoolLogger(l *zap.Logger) PoolOption {
	return func(p *BrowserPool) {
		p.logger = l
	}
}

// withEngine substitutes the browser engine (used by tests).
func withEngine(e browserEngine) PoolOption {
	return func(p *BrowserPool) {
		p.engine = e
	}
}

// NewBrowserPool creates a pool. Browsers launch lazily on first
// acquisition, not at construction.
func NewBrowserPool(cfg PoolConfig, opts ...PoolOption) (*BrowserPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &BrowserPool{
		cfg:       cfg.withDefaults(),
		engine:    newRodEngine(EngineConfigFromEnv()),
		logger:    zap.NewNop(),
		browsers:  make(map[string]*browserInstance),
		leases:    make(map[string]*contextLease),
		done:      make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	go p.sweepLoop()
	return p, nil
}

// AcquireContext claims an isolated execution context, launching a new
// browser when every existing one is full and the cap allows. When the
// pool is saturated it polls at a fixed interval up to the bounded wait
// window, then fails with ErrPoolExhausted. Retry policy belongs to the
// caller.
func (p *BrowserPool) AcquireContext(ctx context.Context, opts ContextOptions) (string, PageHandle, error) {
	deadline := time.Now().Add(p.cfg.AcquireTimeout)

	for {
		inst, launch, err := p.reserveSlot()
		if err != nil {
			return "", nil, err
		}

		if launch {
			inst, err = p.launchBrowser(ctx)
			if err != nil {
				return "", nil, err
			}
		}

		if inst != nil {
			leaseID, page, err := p.openContext(ctx, inst, opts)
			if err != nil {
				return "", nil, err
			}
			return leaseID, page, nil
		}

		if !time.Now().Before(deadline) {
			return "", nil, ErrPoolExhausted
		}
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-p.done:
			return "", nil, ErrPoolClosed
		case <-time.After(p.cfg.AcquirePollInterval):
		}
	}
}

// reserveSlot finds spare capacity. It returns the browser a slot was
// reserved on, or launch=true when the caller should start a new
// browser (a launch reservation is held), or (nil, false) when the pool
// is momentarily full.
func (p *BrowserPool) reserveSlot() (inst *browserInstance, launch bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false, ErrPoolClosed
	}

	// First-fit over browsers in creation order.
	for _, id := range p.order {
		b := p.browsers[id]
		if b == nil || b.recycling {
			continue
		}
		if b.active() < p.cfg.MaxContextsPerBrowser {
			b.pending++
			return b, false, nil
		}
	}

	if len(p.browsers)+p.pendingLaunches < p.cfg.MaxBrowsers {
		p.pendingLaunches++
		return nil, true, nil
	}

	return nil, false, nil
}

// launchBrowser starts a new process under a held launch reservation
// and registers it with one context slot already reserved.
func (p *BrowserPool) launchBrowser(ctx context.Context) (*browserInstance, error) {
	handle, err := p.engine.Launch(ctx)

	p.mu.Lock()
	p.pendingLaunches--
	if err != nil {
		p.mu.Unlock()
		if errors.Is(err, ErrBrowserLaunch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
	}
	if p.closed {
		p.mu.Unlock()
		closeHandle(handle, p.logger)
		return nil, ErrPoolClosed
	}

	now := time.Now()
	inst := &browserInstance{
		id:        uuid.NewString(),
		handle:    handle,
		contexts:  make(map[string]struct{}),
		pending:   1, // reserved for the caller
		createdAt: now,
		lastUsed:  now,
	}
	p.browsers[inst.id] = inst
	p.order = append(p.order, inst.id)
	p.mu.Unlock()

	handle.OnDisconnect(func() { p.handleDisconnect(inst.id) })

	p.logger.Info("browser launched",
		zap.String("browser_id", inst.id),
		zap.Int("pool_size", p.browserCount()))
	return inst, nil
}

// openContext creates the isolated context under a held slot
// reservation, registers the lease, and arms its auto-release timer.
func (p *BrowserPool) openContext(ctx context.Context, inst *browserInstance, opts ContextOptions) (string, PageHandle, error) {
	page, err := inst.handle.NewContext(ctx, opts)

	p.mu.Lock()
	inst.pending--
	if err != nil {
		p.mu.Unlock()
		if errors.Is(err, ErrContextCreate) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("%w: %v", ErrContextCreate, err)
	}
	if p.closed {
		p.mu.Unlock()
		closePage(page, p.logger)
		return "", nil, ErrPoolClosed
	}

	lease := &contextLease{
		id:         uuid.NewString(),
		browserID:  inst.id,
		page:       page,
		acquiredAt: time.Now(),
	}
	lease.timer = time.AfterFunc(p.cfg.ContextTimeout, func() { p.autoRelease(lease.id) })
	p.leases[lease.id] = lease
	inst.contexts[lease.id] = struct{}{}
	inst.uses++
	inst.lastUsed = lease.acquiredAt
	p.mu.Unlock()

	p.logger.Debug("context acquired",
		zap.String("lease_id", lease.id),
		zap.String("browser_id", inst.id))
	return lease.id, page, nil
}

// ReleaseContext returns a lease to the pool. Releasing an unknown or
// already released lease is reported, never fatal, and cannot
// double-decrement bookkeeping.
func (p *BrowserPool) ReleaseContext(leaseID string) error {
	lease, inst, recycle, ok := p.detachLease(leaseID)
	if !ok {
		p.logger.Warn("release of unknown lease", zap.String("lease_id", leaseID))
		return ErrUnknownLease
	}

	closePage(lease.page, p.logger)
	if recycle {
		p.destroyBrowser(inst, "recycle threshold reached")
	}

	p.logger.Debug("context released",
		zap.String("lease_id", leaseID),
		zap.Duration("held", time.Since(lease.acquiredAt)))
	return nil
}

// autoRelease fires when a lease outlives ContextTimeout. The slot is
// reclaimed immediately for accounting; the native close runs with a
// grace window, and a hang kills the owning process group rather than
// leaking the context forever.
func (p *BrowserPool) autoRelease(leaseID string) {
	lease, inst, recycle, ok := p.detachLease(leaseID)
	if !ok {
		return // released explicitly before the timer fired
	}

	p.logger.Warn("lease timed out, force-releasing",
		zap.String("lease_id", leaseID),
		zap.Duration("held", time.Since(lease.acquiredAt)))

	go func() {
		done := make(chan error, 1)
		go func() { done <- lease.page.Close() }()
		select {
		case err := <-done:
			if err != nil {
				p.logger.Warn("context close failed after timeout",
					zap.String("lease_id", leaseID), zap.Error(err))
			}
		case <-time.After(closeGrace):
			p.logger.Error("context close hung, killing browser process",
				zap.String("lease_id", leaseID),
				zap.String("browser_id", lease.browserID))
			if inst != nil {
				p.killBrowser(inst)
			}
		}
		if recycle && inst != nil {
			p.destroyBrowser(inst, "recycle threshold reached")
		}
	}()
}

// detachLease removes a lease from the maps under the lock and reports
// whether the owning browser is due for usage-based recycling. The
// recycling flag is set inside the same critical section so no new
// lease can land on the browser in between.
func (p *BrowserPool) detachLease(leaseID string) (lease *contextLease, inst *browserInstance, recycle, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lease, ok = p.leases[leaseID]
	if !ok {
		return nil, nil, false, false
	}
	delete(p.leases, leaseID)
	lease.timer.Stop()

	inst = p.browsers[lease.browserID] // nil when the browser is already gone
	if inst != nil {
		delete(inst.contexts, leaseID)
		inst.lastUsed = time.Now()
		if !inst.recycling && inst.uses >= p.cfg.RecycleAfterUses && inst.active() == 0 {
			inst.recycling = true
			recycle = true
		}
	}
	return lease, inst, recycle, true
}

// destroyBrowser force-releases every context still attributed to the
// browser, removes it from the pool, and closes the process.
func (p *BrowserPool) destroyBrowser(inst *browserInstance, reason string) {
	orphans := p.removeBrowser(inst.id)

	for _, lease := range orphans {
		closePage(lease.page, p.logger)
	}
	closeHandle(inst.handle, p.logger)

	p.logger.Info("browser destroyed",
		zap.String("browser_id", inst.id),
		zap.String("reason", reason),
		zap.Int("orphaned_contexts", len(orphans)),
		zap.Int("uses", inst.uses))
}

// removeBrowser unregisters the browser and detaches its leases under
// the lock. The returned leases still need their pages closed.
func (p *BrowserPool) removeBrowser(id string) []*contextLease {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.browsers[id]
	if !ok {
		return nil
	}
	delete(p.browsers, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}

	var orphans []*contextLease
	for leaseID := range inst.contexts {
		if lease, ok := p.leases[leaseID]; ok {
			lease.timer.Stop()
			delete(p.leases, leaseID)
			orphans = append(orphans, lease)
		}
	}
	inst.contexts = make(map[string]struct{})
	return orphans
}

// handleDisconnect is the engine's disconnection callback: the process
// dropped its control connection, so its bookkeeping is torn down
// without touching the dead process.
func (p *BrowserPool) handleDisconnect(id string) {
	p.mu.Lock()
	inst, ok := p.browsers[id]
	if ok {
		inst.recycling = true
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	orphans := p.removeBrowser(id)
	p.logger.Warn("browser disconnected",
		zap.String("browser_id", id),
		zap.Int("orphaned_contexts", len(orphans)))
}

// killBrowser is the last resort for a process ignoring Close: kill its
// process group and drop the bookkeeping.
func (p *BrowserPool) killBrowser(inst *browserInstance) {
	if pid := inst.handle.PID(); pid > 0 {
		process.KillProcessGroup(pid)
	}
	orphans := p.removeBrowser(inst.id)
	p.logger.Warn("browser process killed",
		zap.String("browser_id", inst.id),
		zap.Int("orphaned_contexts", len(orphans)))
}

// RecycleBrowser closes the identified browser, force-releasing any
// contexts still attributed to it.
func (p *BrowserPool) RecycleBrowser(id string) error {
	p.mu.Lock()
	inst, ok := p.browsers[id]
	if ok {
		inst.recycling = true
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: browser %s", ErrUnknownLease, id)
	}

	p.destroyBrowser(inst, "explicit recycle")
	return nil
}

// Shutdown drains outstanding leases within the grace period, then
// closes every browser. Acquisition fails fast afterwards.
func (p *BrowserPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	close(p.done)
	<-p.sweepDone

	// Drain: wait for in-flight renders to release their leases.
	grace := time.After(p.cfg.ShutdownGrace)
drain:
	for {
		p.mu.Lock()
		outstanding := len(p.leases)
		p.mu.Unlock()
		if outstanding == 0 {
			break
		}
		select {
		case <-ctx.Done():
			break drain
		case <-grace:
			break drain
		case <-time.After(50 * time.Millisecond):
		}
	}

	p.mu.Lock()
	instances := make([]*browserInstance, 0, len(p.browsers))
	for _, inst := range p.browsers {
		inst.recycling = true
		instances = append(instances, inst)
	}
	p.mu.Unlock()

	var errs []error
	for _, inst := range instances {
		orphans := p.removeBrowser(inst.id)
		for _, lease := range orphans {
			closePage(lease.page, p.logger)
		}
		if err := closeHandleErr(inst.handle); err != nil {
			errs = append(errs, err)
		}
	}

	p.logger.Info("pool shut down", zap.Int("browsers_closed", len(instances)))
	return errors.Join(errs...)
}

// Close shuts the pool down with the configured grace period.
func (p *BrowserPool) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ShutdownGrace)
	defer cancel()
	return p.Shutdown(ctx)
}

// browserCount returns the current number of live browsers.
func (p *BrowserPool) browserCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.browsers)
}

// closePage closes a context page, logging instead of propagating so a
// close failure never masks a primary result.
func closePage(page PageHandle, logger *zap.Logger) {
	if err := page.Close(); err != nil {
		logger.Warn("context close failed", zap.Error(err))
	}
}

// closeHandle closes a browser process with the grace window applied.
func closeHandle(handle browserHandle, logger *zap.Logger) {
	if err := closeHandleErr(handle); err != nil {
		logger.Warn("browser close failed", zap.Error(err))
	}
}

// closeHandleErr closes a browser process, killing the process group if
// the close call hangs past the grace window.
func closeHandleErr(handle browserHandle) error {
	done := make(chan error, 1)
	go func() { done <- handle.Close() }()
	select {
	case err := <-done:
		return err
	case <-time.After(closeGrace):
		if pid := handle.PID(); pid > 0 {
			process.KillProcessGroup(pid)
		}
		return fmt.Errorf("browser close hung, process group killed")
	}
}
