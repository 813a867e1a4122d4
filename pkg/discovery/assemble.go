package discovery

import (
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
)

// buildStacks assembles one Stack per namespace from a cluster snapshot.
// Role-labeled pods are the primary signal; namespaces without them fall
// back to candidate Deployments matched by the serving vocabulary.
func buildStacks(snap *clusterSnapshot, cluster string) []Stack {
	namespaces := collectNamespaces(snap)

	stacks := make([]Stack, 0, len(namespaces))
	for _, namespace := range namespaces {
		stack := assembleNamespace(snap, namespace, cluster)
		if stack == nil {
			continue
		}
		stacks = append(stacks, *stack)
	}
	return stacks
}

// collectNamespaces returns every namespace that might host a stack:
// role-labeled pods, inference pools, or candidate serving deployments.
func collectNamespaces(snap *clusterSnapshot) []string {
	seen := make(map[string]bool)
	for _, pod := range snap.Pods {
		seen[pod.Namespace] = true
	}
	for _, pool := range snap.InferencePools {
		seen[pool.GetNamespace()] = true
	}
	for _, dep := range snap.Deployments {
		if IsServingCandidate(dep.Name, dep.Namespace) {
			seen[dep.Namespace] = true
		}
	}

	namespaces := make([]string, 0, len(seen))
	for namespace := range seen {
		namespaces = append(namespaces, namespace)
	}
	sort.Strings(namespaces)
	return namespaces
}

func assembleNamespace(snap *clusterSnapshot, namespace, cluster string) *Stack {
	byRole := make(map[Role][]corev1.Pod)
	for _, pod := range snap.Pods {
		if pod.Namespace != namespace {
			continue
		}
		role := ClassifyRole(pod.Name, pod.Labels)
		byRole[role] = append(byRole[role], pod)
	}

	stack := &Stack{
		ID:        StackID(namespace, cluster),
		Name:      namespace,
		Namespace: namespace,
		Cluster:   cluster,
	}

	stack.Prefill = buildComponents(byRole[RolePrefill], RolePrefill, namespace, cluster)
	stack.Decode = buildComponents(byRole[RoleDecode], RoleDecode, namespace, cluster)
	stack.Unified = buildComponents(byRole[RoleBoth], RoleBoth, namespace, cluster)
	if epps := buildComponents(byRole[RoleEPP], RoleEPP, namespace, cluster); len(epps) > 0 {
		stack.EPP = &epps[0]
	}
	if gateways := buildComponents(byRole[RoleGateway], RoleGateway, namespace, cluster); len(gateways) > 0 {
		stack.Gateway = &gateways[0]
	}

	// Deployment-based fallback: no role-labeled pods at all in this
	// namespace, but deployments matching the serving vocabulary exist.
	if len(byRole) == 0 {
		applyDeploymentFallback(snap, stack, namespace, cluster)
	}

	if stack.Gateway == nil {
		stack.Gateway = gatewayFromResources(snap, namespace, cluster)
	}

	applyInferencePool(snap, stack, namespace)

	serving := len(stack.Prefill) + len(stack.Decode) + len(stack.Unified)
	if serving == 0 && stack.EPP == nil && stack.Gateway == nil && stack.InferencePool == "" {
		return nil
	}

	stack.Model = firstModel(stack)
	stack.Autoscaler = detectAutoscaler(snap, namespace, namespaceDeployments(snap, namespace))
	stack.Finalize()
	return stack
}

func applyDeploymentFallback(snap *clusterSnapshot, stack *Stack, namespace, cluster string) {
	for _, dep := range snap.Deployments {
		if dep.Namespace != namespace || !IsServingCandidate(dep.Name, dep.Namespace) {
			continue
		}
		component := buildFallbackComponent(&dep, FallbackRole(dep.Name, dep.Namespace), cluster)
		switch component.Role {
		case RolePrefill:
			stack.Prefill = append(stack.Prefill, component)
		case RoleDecode:
			stack.Decode = append(stack.Decode, component)
		case RoleEPP:
			if stack.EPP == nil {
				stack.EPP = &component
			}
		case RoleGateway:
			if stack.Gateway == nil {
				stack.Gateway = &component
			}
		default:
			stack.Unified = append(stack.Unified, component)
		}
	}
}

// gatewayFromResources synthesizes a gateway component from a Gateway API
// resource or an inference-gateway Service when no gateway workload was
// classified. Presence-only: replica counts are unknown from these kinds.
func gatewayFromResources(snap *clusterSnapshot, namespace, cluster string) *StackComponent {
	for _, gw := range snap.Gateways {
		if gw.GetNamespace() != namespace {
			continue
		}
		return &StackComponent{
			Name:      gw.GetName(),
			Namespace: namespace,
			Cluster:   cluster,
			Role:      RoleGateway,
			Status:    ComponentUnknown,
		}
	}
	if !isInferenceNamespace(namespace) {
		return nil
	}
	for _, svc := range snap.Services {
		if svc.Namespace != namespace {
			continue
		}
		lower := strings.ToLower(svc.Name)
		for _, indicator := range gatewayIndicators {
			if strings.Contains(lower, indicator) {
				return &StackComponent{
					Name:      svc.Name,
					Namespace: namespace,
					Cluster:   cluster,
					Role:      RoleGateway,
					Status:    ComponentUnknown,
				}
			}
		}
	}
	return nil
}

func applyInferencePool(snap *clusterSnapshot, stack *Stack, namespace string) {
	for _, pool := range snap.InferencePools {
		if pool.GetNamespace() != namespace {
			continue
		}
		stack.InferencePool = pool.GetName()
		stack.Name = pool.GetName()
		return
	}
}

func firstModel(stack *Stack) string {
	for _, group := range [][]StackComponent{stack.Unified, stack.Decode, stack.Prefill} {
		for _, c := range group {
			if c.Model != "" {
				return c.Model
			}
		}
	}
	return ""
}

func namespaceDeployments(snap *clusterSnapshot, namespace string) map[string]bool {
	names := make(map[string]bool)
	for _, dep := range snap.Deployments {
		if dep.Namespace == namespace {
			names[dep.Name] = true
		}
	}
	return names
}
