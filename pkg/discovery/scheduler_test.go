package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/llmkube/console/pkg/kubectl"
)

// fakeExecutor serves canned responses keyed by "cluster/resource". Any
// resource without a canned response gets an empty list, matching a cluster
// that simply has none of that kind.
type fakeExecutor struct {
	mu        sync.Mutex
	responses map[string]kubectl.Response
	calls     []string
}

func (f *fakeExecutor) Execute(ctx context.Context, clusterContext, namespace string, args []string) kubectl.Response {
	key := clusterContext + "/" + args[1]
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()
	if resp, ok := f.responses[key]; ok {
		return resp
	}
	return kubectl.Response{Output: `{"apiVersion":"v1","kind":"List","items":[]}`}
}

type fakeStore struct {
	mu    sync.Mutex
	saved []*Envelope
	load  *Envelope
}

func (s *fakeStore) SaveSnapshot(env *Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, env)
	return nil
}

func (s *fakeStore) LoadSnapshot() (*Envelope, error) {
	return s.load, nil
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func podListJSON(t *testing.T, pods ...corev1.Pod) string {
	t.Helper()
	data, err := json.Marshal(corev1.PodList{Items: pods})
	if err != nil {
		t.Fatalf("marshal pod list: %v", err)
	}
	return string(data)
}

func staticContexts(names ...string) func() []kubectl.ContextInfo {
	infos := make([]kubectl.ContextInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, kubectl.ContextInfo{Name: name})
	}
	return func() []kubectl.ContextInfo { return infos }
}

func TestEngineCyclePublishesStacks(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]kubectl.Response{
		"c1/pods": {Output: podListJSON(t,
			makeRolePod("llama-decode-aaa11-x1", "llm", "aaa11", "decode", true),
		)},
	}}
	store := &fakeStore{}
	e := NewEngine(exec, staticContexts("c1"), store, Config{})

	e.runCycle(false)

	snap := e.Snapshot()
	if len(snap.Stacks) != 1 {
		t.Fatalf("expected 1 stack, got %d", len(snap.Stacks))
	}
	if snap.Stacks[0].ID != "llm@c1" {
		t.Errorf("unexpected stack id %q", snap.Stacks[0].ID)
	}
	if snap.Loading {
		t.Error("loading should be cleared after the cycle")
	}
	if snap.Error != "" {
		t.Errorf("unexpected error %q", snap.Error)
	}
	if snap.LastRefresh.IsZero() {
		t.Error("lastRefresh should be set")
	}
	if store.saveCount() == 0 {
		t.Error("cycle should persist the stack set")
	}
}

func TestEngineUnreachableClusterPreservesCache(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]kubectl.Response{
		"c1/pods": {ExitCode: 1, Error: "The connection to the server was refused - connection refused"},
	}}
	e := NewEngine(exec, staticContexts("c1"), nil, Config{})

	cached := Stack{
		ID:      "llm@c1",
		Name:    "llm",
		Cluster: "c1",
		Decode:  []StackComponent{runningComponent("llama-decode", RoleDecode)},
	}
	cached.Finalize()
	e.stacks[cached.ID] = cached

	e.runCycle(true)

	snap := e.Snapshot()
	if len(snap.Stacks) != 1 || snap.Stacks[0].ID != "llm@c1" {
		t.Fatalf("cached stacks must survive an unreachable cluster: %+v", snap.Stacks)
	}
	if snap.Error == "" {
		t.Error("all clusters failing should surface an error")
	}
}

func TestEnginePartialFailureKeepsOtherClusters(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]kubectl.Response{
		"down/pods": {ExitCode: 1, Error: "dial tcp: no such host"},
		"up/pods": {Output: podListJSON(t,
			makeRolePod("vllm-both-bbb22-y1", "serving", "bbb22", "both", true),
		)},
	}}
	e := NewEngine(exec, staticContexts("down", "up"), nil, Config{})

	e.runCycle(true)

	snap := e.Snapshot()
	if len(snap.Stacks) != 1 || snap.Stacks[0].Cluster != "up" {
		t.Fatalf("reachable cluster should still publish: %+v", snap.Stacks)
	}
	// Only some clusters failed: no engine-level error
	if snap.Error != "" {
		t.Errorf("partial failure should not set the error, got %q", snap.Error)
	}
}

func TestEngineRefreshCoalesces(t *testing.T) {
	e := NewEngine(&fakeExecutor{}, staticContexts("c1"), nil, Config{})

	e.inFlight.Store(true)
	if e.Refresh() {
		t.Error("refresh while a cycle is in flight must coalesce")
	}
	e.inFlight.Store(false)

	if !e.Refresh() {
		t.Error("refresh with no cycle in flight should start one")
	}
	e.wg.Wait()
}

func TestEngineRefreshAfterStop(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]kubectl.Response{
		"c1/pods": {Output: podListJSON(t,
			makeRolePod("llama-decode-ddd44-w1", "llm", "ddd44", "decode", true),
		)},
	}}
	e := NewEngine(exec, staticContexts("c1"), nil, Config{})

	_, updates := e.Subscribe()
	e.Stop()

	// A cycle started here would publish to the channel Stop just closed.
	if e.Refresh() {
		t.Error("refresh after stop must not start a cycle")
	}
	if _, ok := <-updates; ok {
		t.Error("subscriber channel should be closed by stop")
	}

	// Stop is idempotent
	e.Stop()
}

func TestEngineClusterAllowlist(t *testing.T) {
	e := NewEngine(&fakeExecutor{}, staticContexts("c1", "c2", "c3"), nil, Config{
		Clusters: []string{"c2"},
	})

	names := e.clusterNames()
	if len(names) != 1 || names[0] != "c2" {
		t.Errorf("allowlist not applied: %v", names)
	}
}

func TestEngineSubscribe(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]kubectl.Response{
		"c1/pods": {Output: podListJSON(t,
			makeRolePod("llama-decode-ccc33-z1", "llm", "ccc33", "decode", true),
		)},
	}}
	e := NewEngine(exec, staticContexts("c1"), nil, Config{})

	id, updates := e.Subscribe()
	defer e.Unsubscribe(id)

	e.runCycle(true)

	select {
	case snap := <-updates:
		if len(snap.Stacks) != 1 {
			t.Errorf("published snapshot missing stacks: %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot published to subscriber")
	}
}

func TestEngineSeedFromCache(t *testing.T) {
	stack := Stack{ID: "llm@c1", Name: "llm", Cluster: "c1"}
	stack.Finalize()

	fresh := &fakeStore{load: &Envelope{
		Stacks:    []Stack{stack},
		Timestamp: time.Now().UnixMilli(),
	}}
	e := NewEngine(&fakeExecutor{}, staticContexts("c1"), fresh, Config{})
	if !e.seedFromCache() {
		t.Error("fresh envelope should make the startup refresh silent")
	}
	if len(e.Snapshot().Stacks) != 1 {
		t.Error("cached stacks should be visible immediately")
	}

	stale := &fakeStore{load: &Envelope{
		Stacks:    []Stack{stack},
		Timestamp: time.Now().Add(-time.Hour).UnixMilli(),
	}}
	e = NewEngine(&fakeExecutor{}, staticContexts("c1"), stale, Config{})
	if e.seedFromCache() {
		t.Error("stale envelope should not silence the startup refresh")
	}
	if len(e.Snapshot().Stacks) != 1 {
		t.Error("stale stacks are still shown while refreshing")
	}

	empty := &fakeStore{}
	e = NewEngine(&fakeExecutor{}, staticContexts("c1"), empty, Config{})
	if e.seedFromCache() {
		t.Error("no envelope means nothing to show")
	}
}

func TestFetcherConnectivityAbort(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]kubectl.Response{
		"c1/pods": {ExitCode: 1, Error: "Unable to connect to the server: dial tcp: i/o timeout"},
	}}
	f := NewFetcher(exec, time.Second)

	_, err := f.Fetch(context.Background(), "c1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrClusterUnreachable) {
		t.Errorf("expected ErrClusterUnreachable, got %v", err)
	}
}

func TestFetcherNonConnectivityPodFailure(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]kubectl.Response{
		"c1/pods":        {ExitCode: 1, Error: `Error from server (Forbidden): pods is forbidden`},
		"c1/deployments": {Output: `{"items":[{"metadata":{"name":"vllm-server","namespace":"llm"},"spec":{"replicas":2},"status":{"readyReplicas":2}}]}`},
	}}
	f := NewFetcher(exec, time.Second)

	snap, err := f.Fetch(context.Background(), "c1")
	if err != nil {
		t.Fatalf("non-connectivity pod failure must not abort the pass: %v", err)
	}
	if len(snap.Pods) != 0 {
		t.Errorf("pods should be empty, got %d", len(snap.Pods))
	}
	if len(snap.Deployments) != 1 {
		t.Errorf("other kinds should survive, got %d deployments", len(snap.Deployments))
	}
}

func TestFetcherMalformedResponse(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]kubectl.Response{
		"c1/pods": {Output: "not json"},
	}}
	f := NewFetcher(exec, time.Second)

	snap, err := f.Fetch(context.Background(), "c1")
	if err != nil {
		t.Fatalf("malformed output is non-fatal: %v", err)
	}
	if len(snap.Pods) != 0 {
		t.Errorf("expected no pods, got %d", len(snap.Pods))
	}
}
