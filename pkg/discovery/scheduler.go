package discovery

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/llmkube/console/pkg/kubectl"
)

const (
	// DefaultRefreshInterval is the cadence of silent background cycles.
	DefaultRefreshInterval = 2 * time.Minute
	// DefaultCacheFreshness bounds how old a persisted envelope can be and
	// still make the startup refresh silent. Stale envelopes are shown
	// regardless; freshness only controls the loading indicator.
	DefaultCacheFreshness = 5 * time.Minute

	subscriberBuffer = 8
)

// EnvelopeStore persists the published stack set. Implemented by
// pkg/store; nil disables persistence.
type EnvelopeStore interface {
	SaveSnapshot(env *Envelope) error
	LoadSnapshot() (*Envelope, error)
}

// Config tunes the discovery engine.
type Config struct {
	RefreshInterval time.Duration
	QueryTimeout    time.Duration
	CacheFreshness  time.Duration
	// Clusters restricts discovery to the named contexts; empty means
	// every context the lister reports.
	Clusters []string
}

// Engine drives the discovery cycle: per cluster, fetch, classify,
// assemble, merge against cache, publish progressively. A single logical
// worker runs cycles; overlapping triggers coalesce into a no-op.
type Engine struct {
	cfg      Config
	fetcher  *Fetcher
	contexts func() []kubectl.ContextInfo
	store    EnvelopeStore

	mu          sync.RWMutex
	stacks      map[string]Stack // by stack ID
	loading     bool
	lastErr     string
	lastRefresh time.Time

	inFlight atomic.Bool

	subMu sync.Mutex
	subs  map[uuid.UUID]chan Snapshot

	stopMu  sync.Mutex
	stopped bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewEngine builds an engine over the given executor. contexts supplies
// the kubeconfig contexts to scan each cycle; store may be nil.
func NewEngine(exec kubectl.Executor, contexts func() []kubectl.ContextInfo, store EnvelopeStore, cfg Config) *Engine {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.CacheFreshness <= 0 {
		cfg.CacheFreshness = DefaultCacheFreshness
	}
	return &Engine{
		cfg:      cfg,
		fetcher:  NewFetcher(exec, cfg.QueryTimeout),
		contexts: contexts,
		store:    store,
		stacks:   make(map[string]Stack),
		subs:     make(map[uuid.UUID]chan Snapshot),
		stop:     make(chan struct{}),
	}
}

// Start seeds the published set from the persisted envelope, kicks off the
// first cycle, and begins the background refresh ticker.
func (e *Engine) Start() {
	silent := e.seedFromCache()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runCycle(silent)

		ticker := time.NewTicker(e.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stop:
				return
			case <-ticker.C:
				e.runCycle(true)
			}
		}
	}()
}

// Stop halts the background loop and closes subscriber channels. A cycle
// in flight finishes on its own; it is not cancelled.
func (e *Engine) Stop() {
	e.stopMu.Lock()
	if e.stopped {
		e.stopMu.Unlock()
		return
	}
	e.stopped = true
	close(e.stop)
	e.stopMu.Unlock()

	e.wg.Wait()

	e.subMu.Lock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.subMu.Unlock()
}

// Refresh triggers a discovery cycle. Silent unless there is no data to
// show yet; coalesced to a no-op while a cycle is in flight. Returns
// whether a new cycle was started.
func (e *Engine) Refresh() bool {
	e.mu.RLock()
	silent := len(e.stacks) > 0
	e.mu.RUnlock()

	if e.inFlight.Load() {
		cyclesCoalesced.Inc()
		return false
	}

	// Stop may be waiting on the group and closing subscriber channels;
	// never add a cycle once stopping.
	e.stopMu.Lock()
	defer e.stopMu.Unlock()
	if e.stopped {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runCycle(silent)
	}()
	return true
}

// Snapshot returns an immutable copy of the published state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// Subscribe registers a listener for published snapshots. Slow consumers
// drop intermediate snapshots rather than blocking the scheduler.
func (e *Engine) Subscribe() (uuid.UUID, <-chan Snapshot) {
	id := uuid.New()
	ch := make(chan Snapshot, subscriberBuffer)
	e.subMu.Lock()
	e.subs[id] = ch
	e.subMu.Unlock()
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (e *Engine) Unsubscribe(id uuid.UUID) {
	e.subMu.Lock()
	if ch, ok := e.subs[id]; ok {
		close(ch)
		delete(e.subs, id)
	}
	e.subMu.Unlock()
}

// seedFromCache loads the persisted envelope into the published set.
// Returns whether the startup refresh should be silent: any cached stacks
// within the freshness window mean there is data to show immediately.
func (e *Engine) seedFromCache() bool {
	if e.store == nil {
		return false
	}
	env, err := e.store.LoadSnapshot()
	if err != nil {
		log.Printf("[Discovery] failed to load cached stacks: %v", err)
		return false
	}
	if env == nil || len(env.Stacks) == 0 {
		return false
	}

	e.mu.Lock()
	for _, stack := range env.Stacks {
		e.stacks[stack.ID] = stack
	}
	e.lastRefresh = time.UnixMilli(env.Timestamp)
	e.mu.Unlock()

	age := time.Since(time.UnixMilli(env.Timestamp))
	log.Printf("[Discovery] seeded %d stacks from cache (age %s)", len(env.Stacks), age.Round(time.Second))
	return age < e.cfg.CacheFreshness
}

// runCycle executes one full discovery pass over all configured clusters,
// sequentially, publishing after each cluster completes. Guarded so only
// one cycle runs at a time.
func (e *Engine) runCycle(silent bool) {
	if !e.inFlight.CompareAndSwap(false, true) {
		cyclesCoalesced.Inc()
		return
	}
	defer e.inFlight.Store(false)

	start := time.Now()
	clusters := e.clusterNames()
	if len(clusters) == 0 {
		log.Printf("[Discovery] no clusters configured, skipping cycle")
		return
	}

	if !silent {
		e.mu.Lock()
		e.loading = true
		e.mu.Unlock()
		e.publish()
	}

	failed := 0
	var lastErr error
	for _, cluster := range clusters {
		if err := e.refreshCluster(cluster); err != nil {
			failed++
			lastErr = err
			clusterFailures.WithLabelValues(cluster).Inc()
			log.Printf("[Discovery] cluster %s pass abandoned: %v", cluster, err)
		}
	}

	e.mu.Lock()
	e.loading = false
	e.lastRefresh = time.Now()
	if failed == len(clusters) && lastErr != nil {
		e.lastErr = "all clusters unreachable: " + lastErr.Error()
	} else {
		e.lastErr = ""
	}
	stackCount := len(e.stacks)
	e.mu.Unlock()

	e.persist()
	e.publish()

	cyclesTotal.Inc()
	cycleDuration.Observe(time.Since(start).Seconds())
	stacksDiscovered.Set(float64(stackCount))
	log.Printf("[Discovery] cycle complete: %d stacks across %d clusters (%d failed) in %s",
		stackCount, len(clusters), failed, time.Since(start).Round(time.Millisecond))
}

// refreshCluster fetches and assembles one cluster, then replaces only
// that cluster's subset of the published set. A pass that yields zero
// stacks preserves the prior cached stacks rather than clearing them.
func (e *Engine) refreshCluster(cluster string) error {
	snap, err := e.fetcher.Fetch(context.Background(), cluster)
	if err != nil {
		return err
	}

	fresh := buildStacks(snap, cluster)
	if len(fresh) == 0 {
		// Nothing discovered: likely a partial failure, keep what we had.
		return nil
	}

	e.mu.Lock()
	cached := make(map[string]Stack)
	for id, stack := range e.stacks {
		if stack.Cluster == cluster {
			cached[id] = stack
		}
	}
	merged := mergeClusterStacks(fresh, cached)
	for id, stack := range e.stacks {
		if stack.Cluster == cluster {
			delete(e.stacks, id)
		}
	}
	for _, stack := range merged {
		e.stacks[stack.ID] = stack
	}
	e.mu.Unlock()

	e.persist()
	e.publish()
	return nil
}

func (e *Engine) clusterNames() []string {
	contexts := e.contexts()
	names := make([]string, 0, len(contexts))
	if len(e.cfg.Clusters) > 0 {
		allowed := make(map[string]bool, len(e.cfg.Clusters))
		for _, name := range e.cfg.Clusters {
			allowed[name] = true
		}
		for _, ctx := range contexts {
			if allowed[ctx.Name] {
				names = append(names, ctx.Name)
			}
		}
		return names
	}
	for _, ctx := range contexts {
		names = append(names, ctx.Name)
	}
	return names
}

// snapshotLocked builds the published view. Caller holds at least a read
// lock. The stack slice is freshly allocated and sorted healthy-first.
func (e *Engine) snapshotLocked() Snapshot {
	stacks := make([]Stack, 0, len(e.stacks))
	for _, stack := range e.stacks {
		stacks = append(stacks, stack)
	}
	SortStacks(stacks)
	return Snapshot{
		Stacks:      stacks,
		Loading:     e.loading,
		Error:       e.lastErr,
		LastRefresh: e.lastRefresh,
	}
}

func (e *Engine) publish() {
	snap := e.Snapshot()
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
			// Drop for slow consumers; they get the next snapshot.
		}
	}
}

func (e *Engine) persist() {
	if e.store == nil {
		return
	}
	snap := e.Snapshot()
	env := &Envelope{Stacks: snap.Stacks, Timestamp: time.Now().UnixMilli()}
	if err := e.store.SaveSnapshot(env); err != nil {
		log.Printf("[Discovery] failed to persist stacks: %v", err)
	}
}
