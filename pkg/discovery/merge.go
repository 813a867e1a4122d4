package discovery

// mergeStack reconciles a freshly assembled stack against the previously
// cached stack with the same identity. Fresh data wins field by field, but
// an empty fresh slot falls back to the cached value: an empty component
// list after a cycle is more often a silently failed fetch than a stack
// that legitimately lost every replica. Derived fields are never merged,
// only recomputed from the merged inputs.
func mergeStack(fresh Stack, cached *Stack) Stack {
	if cached == nil {
		fresh.Finalize()
		return fresh
	}

	merged := fresh

	if len(merged.Prefill) == 0 && len(cached.Prefill) > 0 {
		merged.Prefill = cached.Prefill
	}
	if len(merged.Decode) == 0 && len(cached.Decode) > 0 {
		merged.Decode = cached.Decode
	}
	if len(merged.Unified) == 0 && len(cached.Unified) > 0 {
		merged.Unified = cached.Unified
	}
	if merged.EPP == nil && cached.EPP != nil {
		merged.EPP = cached.EPP
	}
	if merged.Gateway == nil && cached.Gateway != nil {
		merged.Gateway = cached.Gateway
	}
	if merged.Autoscaler == nil && cached.Autoscaler != nil {
		merged.Autoscaler = cached.Autoscaler
	}
	if merged.Model == "" && cached.Model != "" {
		merged.Model = cached.Model
	}
	if merged.InferencePool == "" && cached.InferencePool != "" {
		merged.InferencePool = cached.InferencePool
		if merged.Name == merged.Namespace {
			merged.Name = cached.Name
		}
	}

	merged.Finalize()
	return merged
}

// mergeClusterStacks merges each fresh stack with its cached counterpart
// by identity. Order independent: one merged stack per identity.
func mergeClusterStacks(fresh []Stack, cached map[string]Stack) []Stack {
	merged := make([]Stack, 0, len(fresh))
	for _, stack := range fresh {
		if prev, ok := cached[stack.ID]; ok {
			merged = append(merged, mergeStack(stack, &prev))
		} else {
			merged = append(merged, mergeStack(stack, nil))
		}
	}
	return merged
}
