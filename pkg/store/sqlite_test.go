package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmkube/console/pkg/discovery"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "stacks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadSnapshotEmpty(t *testing.T) {
	s := newTestStore(t)

	env, err := s.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, env, "fresh store should have no snapshot")
}

func TestSaveLoadSnapshot(t *testing.T) {
	s := newTestStore(t)

	stack := discovery.Stack{
		ID:        "llm@prod",
		Name:      "llama-pool",
		Namespace: "llm",
		Cluster:   "prod",
		Unified: []discovery.StackComponent{{
			Name:          "vllm-server",
			Namespace:     "llm",
			Cluster:       "prod",
			Role:          discovery.RoleBoth,
			Status:        discovery.ComponentRunning,
			Replicas:      3,
			ReadyReplicas: 3,
			Model:         "llama-3-70b",
		}},
	}
	stack.Finalize()

	saved := &discovery.Envelope{
		Stacks:    []discovery.Stack{stack},
		Timestamp: time.Now().UnixMilli(),
	}
	require.NoError(t, s.SaveSnapshot(saved))

	loaded, err := s.LoadSnapshot()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved.Timestamp, loaded.Timestamp)
	require.Len(t, loaded.Stacks, 1)
	assert.Equal(t, stack, loaded.Stacks[0])
}

func TestSaveSnapshotReplaces(t *testing.T) {
	s := newTestStore(t)

	first := &discovery.Envelope{
		Stacks:    []discovery.Stack{{ID: "a@c1", Name: "a"}},
		Timestamp: 1000,
	}
	require.NoError(t, s.SaveSnapshot(first))

	second := &discovery.Envelope{
		Stacks: []discovery.Stack{
			{ID: "a@c1", Name: "a"},
			{ID: "b@c2", Name: "b"},
		},
		Timestamp: 2000,
	}
	require.NoError(t, s.SaveSnapshot(second))

	loaded, err := s.LoadSnapshot()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.EqualValues(t, 2000, loaded.Timestamp)
	assert.Len(t, loaded.Stacks, 2, "save must replace, not append")
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stacks.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshot(&discovery.Envelope{
		Stacks:    []discovery.Stack{{ID: "a@c1", Name: "a"}},
		Timestamp: 42,
	}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.LoadSnapshot()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.EqualValues(t, 42, loaded.Timestamp)
}
