package discovery

import (
	"testing"

	autoscalingv2 "k8s.io/api/autoscaling/v2"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func makeWVA(name, namespace, target string, minReplicas, maxReplicas, current, desired int64) unstructured.Unstructured {
	return unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "llmd.ai/v1alpha1",
		"kind":       "VariantAutoscaling",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
		},
		"spec": map[string]interface{}{
			"scaleTargetRef": map[string]interface{}{"name": target},
			"minReplicas":    minReplicas,
			"maxReplicas":    maxReplicas,
		},
		"status": map[string]interface{}{
			"currentAlloc":          map[string]interface{}{"numReplicas": current},
			"desiredOptimizedAlloc": map[string]interface{}{"numReplicas": desired},
		},
	}}
}

func makeHPA(name, namespace string, minReplicas, maxReplicas, current, desired int32) autoscalingv2.HorizontalPodAutoscaler {
	return autoscalingv2.HorizontalPodAutoscaler{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: autoscalingv2.HorizontalPodAutoscalerSpec{
			MinReplicas: &minReplicas,
			MaxReplicas: maxReplicas,
		},
		Status: autoscalingv2.HorizontalPodAutoscalerStatus{
			CurrentReplicas: current,
			DesiredReplicas: desired,
		},
	}
}

func makeVPA(name, namespace string) unstructured.Unstructured {
	return unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "autoscaling.k8s.io/v1",
		"kind":       "VerticalPodAutoscaler",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
		},
	}}
}

func TestDetectAutoscalerPrecedence(t *testing.T) {
	snap := &clusterSnapshot{
		WVAs: []unstructured.Unstructured{makeWVA("wva-llama", "llm", "llama-decode", 1, 8, 3, 4)},
		HPAs: []autoscalingv2.HorizontalPodAutoscaler{makeHPA("hpa-llama", "llm", 2, 10, 5, 5)},
		VPAs: []unstructured.Unstructured{makeVPA("vpa-llama", "llm")},
	}

	info := detectAutoscaler(snap, "llm", map[string]bool{"llama-decode": true})
	if info == nil {
		t.Fatal("expected an autoscaler")
	}
	if info.Kind != AutoscalerWVA {
		t.Fatalf("variant autoscaler should win over HPA and VPA, got %q", info.Kind)
	}
	if info.Name != "wva-llama" || info.MinReplicas != 1 || info.MaxReplicas != 8 {
		t.Errorf("unexpected bounds: %+v", info)
	}
	if info.CurrentReplicas != 3 || info.DesiredReplicas != 4 {
		t.Errorf("unexpected replica state: %+v", info)
	}
}

func TestDetectAutoscalerHPAFallback(t *testing.T) {
	snap := &clusterSnapshot{
		HPAs: []autoscalingv2.HorizontalPodAutoscaler{
			makeHPA("other-hpa", "other", 1, 4, 2, 2),
			makeHPA("hpa-llm", "llm", 2, 10, 5, 6),
		},
		VPAs: []unstructured.Unstructured{makeVPA("vpa-llm", "llm")},
	}

	info := detectAutoscaler(snap, "llm", nil)
	if info == nil || info.Kind != AutoscalerHPA {
		t.Fatalf("expected HPA, got %+v", info)
	}
	if info.Name != "hpa-llm" {
		t.Errorf("HPA from another namespace matched: %+v", info)
	}
	if info.MinReplicas != 2 || info.MaxReplicas != 10 || info.CurrentReplicas != 5 || info.DesiredReplicas != 6 {
		t.Errorf("unexpected HPA fields: %+v", info)
	}
}

func TestDetectAutoscalerVPALast(t *testing.T) {
	snap := &clusterSnapshot{
		VPAs: []unstructured.Unstructured{makeVPA("vpa-llm", "llm")},
	}

	info := detectAutoscaler(snap, "llm", nil)
	if info == nil || info.Kind != AutoscalerVPA {
		t.Fatalf("expected VPA, got %+v", info)
	}
	// VPAs carry no replica bounds
	if info.MinReplicas != 0 || info.MaxReplicas != 0 {
		t.Errorf("VPA should report no bounds: %+v", info)
	}

	if got := detectAutoscaler(&clusterSnapshot{}, "llm", nil); got != nil {
		t.Errorf("empty snapshot should yield no autoscaler, got %+v", got)
	}
}

func TestMatchWVACrossNamespace(t *testing.T) {
	wvas := []unstructured.Unstructured{
		makeWVA("wva-elsewhere", "autoscaling-system", "llama-decode", 1, 6, 2, 3),
	}

	// Matched via scale target referencing one of the namespace's deployments
	info := matchWVA(wvas, "llm", map[string]bool{"llama-decode": true})
	if info == nil || info.Name != "wva-elsewhere" {
		t.Fatalf("cross-namespace scale target should match, got %+v", info)
	}

	// No deployment-name match and different namespace: no match
	if got := matchWVA(wvas, "llm", map[string]bool{"qwen-decode": true}); got != nil {
		t.Errorf("expected no match, got %+v", got)
	}
}
