package discovery

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// detectAutoscaler selects the single autoscaler governing a namespace's
// stack. Precedence is fixed: a variant autoscaler wins (matched by
// namespace or by its scale target referencing one of the namespace's
// deployments), then an HPA in the namespace, then a VPA reported without
// replica bounds. Deterministic given the same cluster state.
func detectAutoscaler(snap *clusterSnapshot, namespace string, deployNames map[string]bool) *AutoscalerInfo {
	if info := matchWVA(snap.WVAs, namespace, deployNames); info != nil {
		return info
	}

	for _, hpa := range snap.HPAs {
		if hpa.Namespace != namespace {
			continue
		}
		info := &AutoscalerInfo{
			Kind:            AutoscalerHPA,
			Name:            hpa.Name,
			MaxReplicas:     hpa.Spec.MaxReplicas,
			CurrentReplicas: hpa.Status.CurrentReplicas,
			DesiredReplicas: hpa.Status.DesiredReplicas,
		}
		if hpa.Spec.MinReplicas != nil {
			info.MinReplicas = *hpa.Spec.MinReplicas
		}
		return info
	}

	for _, vpa := range snap.VPAs {
		if vpa.GetNamespace() != namespace {
			continue
		}
		// VPAs manage resource requests, not replica counts: no bounds.
		return &AutoscalerInfo{Kind: AutoscalerVPA, Name: vpa.GetName()}
	}

	return nil
}

func matchWVA(wvas []unstructured.Unstructured, namespace string, deployNames map[string]bool) *AutoscalerInfo {
	for _, wva := range wvas {
		sameNamespace := wva.GetNamespace() == namespace
		target, _, _ := unstructured.NestedString(wva.Object, "spec", "scaleTargetRef", "name")
		if !sameNamespace && !deployNames[target] {
			continue
		}

		info := &AutoscalerInfo{Kind: AutoscalerWVA, Name: wva.GetName()}
		if min, found, _ := unstructured.NestedInt64(wva.Object, "spec", "minReplicas"); found {
			info.MinReplicas = int32(min)
		}
		if max, found, _ := unstructured.NestedInt64(wva.Object, "spec", "maxReplicas"); found {
			info.MaxReplicas = int32(max)
		}
		if current, found, _ := unstructured.NestedInt64(wva.Object, "status", "currentAlloc", "numReplicas"); found {
			info.CurrentReplicas = int32(current)
		}
		if desired, found, _ := unstructured.NestedInt64(wva.Object, "status", "desiredOptimizedAlloc", "numReplicas"); found {
			info.DesiredReplicas = int32(desired)
		}
		return info
	}
	return nil
}
