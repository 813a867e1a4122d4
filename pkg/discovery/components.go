package discovery

import (
	"sort"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
)

// ModelLabel carries the served model identifier when present.
const ModelLabel = "llm-d.ai/model"

const podTemplateHashLabel = "pod-template-hash"

// buildComponents groups classified pods of one role into deployment-sized
// units keyed by replica-set identity (pod-template-hash) and computes
// per-unit readiness. Partial availability still counts as serving
// capacity: a group is running as soon as one pod is fully ready.
func buildComponents(pods []corev1.Pod, role Role, namespace, cluster string) []StackComponent {
	groups := make(map[string][]corev1.Pod)
	for _, pod := range pods {
		key := pod.Labels[podTemplateHashLabel]
		if key == "" {
			key = componentName(&pod)
		}
		groups[key] = append(groups[key], pod)
	}

	components := make([]StackComponent, 0, len(groups))
	for _, group := range groups {
		name := componentName(&group[0])
		model := group[0].Labels[ModelLabel]

		var ready int32
		pending := 0
		podNames := make([]string, 0, len(group))
		for _, pod := range group {
			podNames = append(podNames, pod.Name)
			if isPodReady(&pod) {
				ready++
			} else if pod.Status.Phase == corev1.PodPending {
				pending++
			}
		}
		sort.Strings(podNames)

		status := ComponentError
		if ready > 0 {
			status = ComponentRunning
		} else if pending == len(group) {
			status = ComponentPending
		}

		components = append(components, StackComponent{
			Name:          name,
			Namespace:     namespace,
			Cluster:       cluster,
			Role:          role,
			Status:        status,
			Replicas:      int32(len(group)),
			ReadyReplicas: ready,
			Model:         model,
			Pods:          podNames,
		})
	}

	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })
	return components
}

// buildFallbackComponent synthesizes one component from a Deployment's own
// replica counters. Used when a namespace has no role-labeled pods but a
// candidate serving Deployment exists (clusters predating the llm-d
// labeling convention).
func buildFallbackComponent(dep *appsv1.Deployment, role Role, cluster string) StackComponent {
	var replicas int32
	if dep.Spec.Replicas != nil {
		replicas = *dep.Spec.Replicas
	} else {
		replicas = dep.Status.Replicas
	}
	ready := dep.Status.ReadyReplicas

	status := ComponentError
	if ready > 0 {
		status = ComponentRunning
	} else if replicas == 0 {
		status = ComponentUnknown
	}

	return StackComponent{
		Name:          dep.Name,
		Namespace:     dep.Namespace,
		Cluster:       cluster,
		Role:          role,
		Status:        status,
		Replicas:      replicas,
		ReadyReplicas: ready,
		Model:         dep.Labels[ModelLabel],
	}
}

// isPodReady reports phase Running with every container ready.
func isPodReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	if len(pod.Status.ContainerStatuses) == 0 {
		return false
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			return false
		}
	}
	return true
}

// componentName approximates the owning deployment's name by stripping the
// replica-set hash and random suffix from the pod name.
func componentName(pod *corev1.Pod) string {
	name := pod.Name
	if hash := pod.Labels[podTemplateHashLabel]; hash != "" {
		if idx := strings.Index(name, "-"+hash+"-"); idx > 0 {
			return name[:idx]
		}
		return strings.TrimSuffix(name, "-"+hash)
	}
	if pod.GenerateName != "" {
		return strings.TrimSuffix(pod.GenerateName, "-")
	}
	return name
}
