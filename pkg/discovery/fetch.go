package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/llmkube/console/pkg/kubectl"
)

// ErrClusterUnreachable aborts a cluster pass when the primary pod query
// fails with a connectivity-class error. Cached stacks for that cluster are
// left untouched by the scheduler.
var ErrClusterUnreachable = errors.New("cluster unreachable")

// clusterSnapshot holds the raw per-kind results of one cluster pass.
// A kind whose query failed non-fatally is simply empty.
type clusterSnapshot struct {
	Pods           []corev1.Pod
	Deployments    []appsv1.Deployment
	Services       []corev1.Service
	HPAs           []autoscalingv2.HorizontalPodAutoscaler
	InferencePools []unstructured.Unstructured
	Gateways       []unstructured.Unstructured
	WVAs           []unstructured.Unstructured
	VPAs           []unstructured.Unstructured
}

// Fetcher issues the fixed set of read queries against one cluster.
// Stateless; safe for concurrent use.
type Fetcher struct {
	exec    kubectl.Executor
	timeout time.Duration
}

// NewFetcher wraps an executor with a per-query timeout.
func NewFetcher(exec kubectl.Executor, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = kubectl.DefaultQueryTimeout
	}
	return &Fetcher{exec: exec, timeout: timeout}
}

// Fetch runs all eight resource queries concurrently and waits for every
// one. A single query's failure does not abort the others; only a
// connectivity failure on the pod query abandons the whole cluster pass.
func (f *Fetcher) Fetch(ctx context.Context, cluster string) (*clusterSnapshot, error) {
	snap := &clusterSnapshot{}
	var podsErr error

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	run(func() {
		resp := f.query(ctx, cluster, "pods", "-l", RoleLabel)
		var list corev1.PodList
		if err := parseList(resp, &list); err != nil {
			podsErr = err
			return
		}
		snap.Pods = list.Items
	})
	run(func() {
		resp := f.query(ctx, cluster, "deployments")
		var list appsv1.DeploymentList
		if err := parseList(resp, &list); err != nil {
			log.Printf("[Discovery] %s: deployments query failed: %v", cluster, err)
			return
		}
		snap.Deployments = list.Items
	})
	run(func() {
		resp := f.query(ctx, cluster, "services")
		var list corev1.ServiceList
		if err := parseList(resp, &list); err != nil {
			log.Printf("[Discovery] %s: services query failed: %v", cluster, err)
			return
		}
		snap.Services = list.Items
	})
	run(func() {
		resp := f.query(ctx, cluster, "horizontalpodautoscalers.autoscaling")
		var list autoscalingv2.HorizontalPodAutoscalerList
		if err := parseList(resp, &list); err != nil {
			log.Printf("[Discovery] %s: hpa query failed: %v", cluster, err)
			return
		}
		snap.HPAs = list.Items
	})
	run(func() { snap.InferencePools = f.queryUnstructured(ctx, cluster, "inferencepools.inference.networking.x-k8s.io") })
	run(func() { snap.Gateways = f.queryUnstructured(ctx, cluster, "gateways.gateway.networking.k8s.io") })
	run(func() { snap.WVAs = f.queryUnstructured(ctx, cluster, "variantautoscalings.llmd.ai") })
	run(func() { snap.VPAs = f.queryUnstructured(ctx, cluster, "verticalpodautoscalers.autoscaling.k8s.io") })

	wg.Wait()

	if podsErr != nil {
		var connErr *connectivityError
		if errors.As(podsErr, &connErr) {
			return nil, fmt.Errorf("%w: %s: %v", ErrClusterUnreachable, cluster, podsErr)
		}
		// Malformed response or non-connectivity failure: treat pods as
		// empty and keep the other kinds.
		log.Printf("[Discovery] %s: pods query failed non-fatally: %v", cluster, podsErr)
	}

	return snap, nil
}

func (f *Fetcher) query(ctx context.Context, cluster, resource string, extra ...string) kubectl.Response {
	queryCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	args := append([]string{"get", resource, "--all-namespaces", "-o", "json"}, extra...)
	return f.exec.Execute(queryCtx, cluster, "", args)
}

// queryUnstructured fetches a CRD-backed kind, returning nil when the query
// fails or the CRD is not installed on the cluster.
func (f *Fetcher) queryUnstructured(ctx context.Context, cluster, resource string) []unstructured.Unstructured {
	resp := f.query(ctx, cluster, resource)
	var list unstructured.UnstructuredList
	if err := parseList(resp, &list); err != nil {
		return nil
	}
	return list.Items
}

// connectivityError distinguishes "cluster is down" from "query returned
// garbage". Classified by the transport's error-text vocabulary.
type connectivityError struct {
	text string
}

func (e *connectivityError) Error() string { return e.text }

// parseList interprets one query response. Non-zero exit or unparsable
// output means "no resources of this kind" unless the error text matches
// the connectivity vocabulary.
func parseList(resp kubectl.Response, out any) error {
	if resp.ExitCode != 0 {
		if kubectl.IsConnectivityError(resp.Error) {
			return &connectivityError{text: resp.Error}
		}
		return fmt.Errorf("query failed (exit %d): %s", resp.ExitCode, resp.Error)
	}
	if err := json.Unmarshal([]byte(resp.Output), out); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	return nil
}
