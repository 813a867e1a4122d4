package discovery

import (
	"sort"
	"time"
)

// Role classifies what a replica group does within an inference stack.
type Role string

const (
	RolePrefill Role = "prefill"
	RoleDecode  Role = "decode"
	RoleBoth    Role = "both" // unified prefill+decode server
	RoleEPP     Role = "epp"  // endpoint picker / scheduler
	RoleGateway Role = "gateway"
)

// ComponentStatus is the health of one replica group.
type ComponentStatus string

const (
	ComponentRunning ComponentStatus = "running"
	ComponentPending ComponentStatus = "pending"
	ComponentError   ComponentStatus = "error"
	ComponentUnknown ComponentStatus = "unknown"
)

// StackStatus is the derived health of a whole stack.
type StackStatus string

const (
	StackHealthy   StackStatus = "healthy"
	StackDegraded  StackStatus = "degraded"
	StackUnhealthy StackStatus = "unhealthy"
	StackUnknown   StackStatus = "unknown"
)

// AutoscalerKind identifies which controller governs a stack's replicas.
// At most one is attached per stack (see DetectAutoscaler precedence).
type AutoscalerKind string

const (
	AutoscalerHPA AutoscalerKind = "hpa"
	AutoscalerWVA AutoscalerKind = "wva" // workload-variant-autoscaler
	AutoscalerVPA AutoscalerKind = "vpa"
)

// StackComponent is a homogeneous group of serving replicas within one
// namespace/cluster. Rebuilt from scratch every discovery cycle, never
// mutated in place.
type StackComponent struct {
	Name          string          `json:"name"`
	Namespace     string          `json:"namespace"`
	Cluster       string          `json:"cluster"`
	Role          Role            `json:"role"`
	Status        ComponentStatus `json:"status"`
	Replicas      int32           `json:"replicas"`
	ReadyReplicas int32           `json:"readyReplicas"`
	Model         string          `json:"model,omitempty"`
	Pods          []string        `json:"pods,omitempty"`
}

// AutoscalerInfo describes the autoscaler governing a stack, if any.
type AutoscalerInfo struct {
	Kind            AutoscalerKind `json:"kind"`
	Name            string         `json:"name"`
	MinReplicas     int32          `json:"minReplicas,omitempty"`
	MaxReplicas     int32          `json:"maxReplicas,omitempty"`
	CurrentReplicas int32          `json:"currentReplicas,omitempty"`
	DesiredReplicas int32          `json:"desiredReplicas,omitempty"`
}

// Stack is one discovered inference serving deployment, identified by
// (namespace, cluster). Derived fields (Status, Disaggregated, totals) are
// always recomputed from the component set; see Finalize.
type Stack struct {
	ID             string           `json:"id"` // namespace@cluster
	Name           string           `json:"name"`
	Namespace      string           `json:"namespace"`
	Cluster        string           `json:"cluster"`
	InferencePool  string           `json:"inferencePool,omitempty"`
	Prefill        []StackComponent `json:"prefill,omitempty"`
	Decode         []StackComponent `json:"decode,omitempty"`
	Unified        []StackComponent `json:"unified,omitempty"`
	EPP            *StackComponent  `json:"epp,omitempty"`
	Gateway        *StackComponent  `json:"gateway,omitempty"`
	Status         StackStatus      `json:"status"`
	Disaggregated  bool             `json:"disaggregated"`
	Model          string           `json:"model,omitempty"`
	TotalReplicas  int32            `json:"totalReplicas"`
	ReadyReplicas  int32            `json:"readyReplicas"`
	Autoscaler     *AutoscalerInfo  `json:"autoscaler,omitempty"`
}

// StackID builds the stable identity for a (namespace, cluster) pair.
func StackID(namespace, cluster string) string {
	return namespace + "@" + cluster
}

// components returns every component present on the stack, serving groups
// first. EPP and gateway participate in status but not in replica totals.
func (s *Stack) components() []StackComponent {
	all := make([]StackComponent, 0, len(s.Prefill)+len(s.Decode)+len(s.Unified)+2)
	all = append(all, s.Prefill...)
	all = append(all, s.Decode...)
	all = append(all, s.Unified...)
	if s.EPP != nil {
		all = append(all, *s.EPP)
	}
	if s.Gateway != nil {
		all = append(all, *s.Gateway)
	}
	return all
}

// Finalize recomputes every derived field from the component set. Called
// after assembly and again after merging so the invariants hold no matter
// which inputs were substituted from cache.
func (s *Stack) Finalize() {
	s.Disaggregated = len(s.Prefill) > 0 && len(s.Decode) > 0

	var total, ready int32
	for _, group := range [][]StackComponent{s.Prefill, s.Decode, s.Unified} {
		for _, c := range group {
			total += c.Replicas
			ready += c.ReadyReplicas
		}
	}
	s.TotalReplicas = total
	s.ReadyReplicas = ready

	s.Status = computeStackStatus(s.components())
	// A group serves with a single ready pod, but full stack health also
	// requires every serving replica to be ready.
	if s.Status == StackHealthy && s.ReadyReplicas < s.TotalReplicas {
		s.Status = StackDegraded
	}
}

// computeStackStatus is the status state machine: unknown with no
// components, healthy when all run, unhealthy when none do, degraded
// otherwise.
func computeStackStatus(components []StackComponent) StackStatus {
	if len(components) == 0 {
		return StackUnknown
	}
	running := 0
	for _, c := range components {
		if c.Status == ComponentRunning {
			running++
		}
	}
	switch {
	case running == len(components):
		return StackHealthy
	case running > 0:
		return StackDegraded
	default:
		return StackUnhealthy
	}
}

// SortStacks orders healthy stacks first, then lexicographically by name.
func SortStacks(stacks []Stack) {
	sort.SliceStable(stacks, func(i, j int) bool {
		iHealthy := stacks[i].Status == StackHealthy
		jHealthy := stacks[j].Status == StackHealthy
		if iHealthy != jHealthy {
			return iHealthy
		}
		if stacks[i].Name != stacks[j].Name {
			return stacks[i].Name < stacks[j].Name
		}
		return stacks[i].ID < stacks[j].ID
	})
}

// Snapshot is the published view handed to API consumers. The Stacks slice
// is a copy; readers never observe engine-internal state.
type Snapshot struct {
	Stacks      []Stack   `json:"stacks"`
	Loading     bool      `json:"loading"`
	Error       string    `json:"error,omitempty"`
	LastRefresh time.Time `json:"lastRefresh"`
}

// Envelope is the persisted cache record: the full stack set plus a single
// timestamp. Written with atomic replace, read once at startup.
type Envelope struct {
	Stacks    []Stack `json:"stacks"`
	Timestamp int64   `json:"timestamp"` // epoch millis
}
