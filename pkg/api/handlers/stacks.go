package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/llmkube/console/pkg/discovery"
	"github.com/llmkube/console/pkg/kubectl"
)

// StackEngine is the slice of the discovery engine the handlers need.
type StackEngine interface {
	Snapshot() discovery.Snapshot
	Refresh() bool
	Subscribe() (uuid.UUID, <-chan discovery.Snapshot)
	Unsubscribe(id uuid.UUID)
}

// ContextLister enumerates the kubeconfig contexts available for discovery.
type ContextLister interface {
	ListContexts() []kubectl.ContextInfo
}

// StackHandlers serves the published stack set.
type StackHandlers struct {
	engine   StackEngine
	contexts ContextLister
}

// NewStackHandlers creates handlers over the engine and context lister.
func NewStackHandlers(engine StackEngine, contexts ContextLister) *StackHandlers {
	return &StackHandlers{engine: engine, contexts: contexts}
}

// GetStacks returns the current published snapshot. The stacks array is a
// copy; callers must treat it as read-only.
func (h *StackHandlers) GetStacks(c *fiber.Ctx) error {
	return c.JSON(h.engine.Snapshot())
}

// RefreshStacks triggers a discovery cycle. A trigger while a cycle is in
// flight is coalesced, not an error.
func (h *StackHandlers) RefreshStacks(c *fiber.Ctx) error {
	triggered := h.engine.Refresh()
	return c.JSON(fiber.Map{"triggered": triggered})
}

// ListClusters returns the kubeconfig contexts discovery iterates over.
func (h *StackHandlers) ListClusters(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"clusters": h.contexts.ListContexts()})
}

// StreamStacks streams snapshots via SSE: one "snapshot" event
// immediately, then one per engine publish. Clusters complete one at a
// time, so consumers see the stack set fill in progressively.
func (h *StackHandlers) StreamStacks(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	id, updates := h.engine.Subscribe()
	snapshot := h.engine.Snapshot()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer h.engine.Unsubscribe(id)

		if err := writeSSEEvent(w, "snapshot", snapshot); err != nil {
			return
		}
		for snap := range updates {
			if err := writeSSEEvent(w, "snapshot", snap); err != nil {
				// Client went away; unsubscribe and stop.
				return
			}
		}
	})

	return nil
}

// writeSSEEvent writes one SSE event to the buffered writer and flushes.
func writeSSEEvent(w *bufio.Writer, eventName string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[SSE] marshal error: %v", err)
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, jsonData); err != nil {
		return err
	}
	return w.Flush()
}
