package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentcore/runtime/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotFound = errors.New("not found")

func writeCorruptFile(path string) error {
	return os.WriteFile(path, []byte("{not valid json"), 0o644)
}

func sampleCheckpoint(id, agentID string) *Checkpoint {
	return &Checkpoint{
		ID:      id,
		AgentID: agentID,
		Messages: []message.Message{
			{Role: message.RoleUser, Content: "x"},
			{Role: message.RoleAssistant, Content: "y"},
		},
		State: message.StateReady,
	}
}

func TestMemoryCheckpointerSaveLoadClones(t *testing.T) {
	store := NewMemoryCheckpointer()
	ctx := context.Background()

	cp := sampleCheckpoint("cp1", "A")
	id, err := store.Save(ctx, cp)
	require.NoError(t, err)
	assert.Equal(t, "cp1", id)

	// Mutating the original after Save must not affect the stored copy.
	cp.Messages[0].Content = "mutated"

	loaded, err := store.Load(ctx, "cp1")
	require.NoError(t, err)
	assert.Equal(t, "x", loaded.Messages[0].Content)

	// Mutating the loaded copy must not affect the store.
	loaded.Messages[0].Content = "also mutated"
	reloaded, err := store.Load(ctx, "cp1")
	require.NoError(t, err)
	assert.Equal(t, "x", reloaded.Messages[0].Content)
}

func TestMemoryCheckpointerFork(t *testing.T) {
	store := NewMemoryCheckpointer()
	ctx := context.Background()

	_, err := store.Save(ctx, sampleCheckpoint("cp1", "A"))
	require.NoError(t, err)

	newID, err := store.Fork(ctx, "cp1", "B")
	require.NoError(t, err)

	forked, err := store.Load(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, "B", forked.AgentID)
	assert.Equal(t, "cp1", forked.Metadata["parent_checkpoint_id"])
	assert.True(t, forked.IsForkPoint)
	assert.Equal(t, "x", forked.Messages[0].Content)

	parent, err := store.Load(ctx, "cp1")
	require.NoError(t, err)
	assert.False(t, parent.IsForkPoint)
}

func TestMemoryCheckpointerDeleteIsIdempotent(t *testing.T) {
	store := NewMemoryCheckpointer()
	assert.NoError(t, store.Delete(context.Background(), "missing"))
}

func TestMemoryCheckpointerListOrdersByTimestampDescending(t *testing.T) {
	store := NewMemoryCheckpointer()
	ctx := context.Background()

	cp1 := sampleCheckpoint("cp1", "A")
	cp1.Timestamp = 100
	cp2 := sampleCheckpoint("cp2", "A")
	cp2.Timestamp = 200

	_, _ = store.Save(ctx, cp1)
	_, _ = store.Save(ctx, cp2)

	items, err := store.List(ctx, "A", ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "cp2", items[0].ID)
	assert.Equal(t, "cp1", items[1].ID)
}

func TestFileCheckpointerRoundTripAndFork(t *testing.T) {
	dir := t.TempDir()
	store := NewFileCheckpointer(dir)
	ctx := context.Background()

	_, err := store.Save(ctx, sampleCheckpoint("cp1", "A"))
	require.NoError(t, err)

	wantPath := filepath.Join(dir, "A", "checkpoints", "cp1.json")
	require.FileExists(t, wantPath)

	loaded, err := store.Load(ctx, "cp1")
	require.NoError(t, err)
	assert.Equal(t, "A", loaded.AgentID)

	newID, err := store.Fork(ctx, "cp1", "B")
	require.NoError(t, err)
	forked, err := store.Load(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, "B", forked.AgentID)
	assert.Equal(t, "cp1", forked.Metadata["parent_checkpoint_id"])
}

func TestFileCheckpointerSkipsCorruptFilesDuringList(t *testing.T) {
	dir := t.TempDir()
	store := NewFileCheckpointer(dir)
	ctx := context.Background()

	_, err := store.Save(ctx, sampleCheckpoint("cp1", "A"))
	require.NoError(t, err)

	corruptDir := filepath.Join(dir, "A", "checkpoints")
	require.NoError(t, writeCorruptFile(filepath.Join(corruptDir, "cp2.json")))

	items, err := store.List(ctx, "A", ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "cp1", items[0].ID)
}

func TestFileCheckpointerDeleteIsIdempotent(t *testing.T) {
	store := NewFileCheckpointer(t.TempDir())
	assert.NoError(t, store.Delete(context.Background(), "missing"))
}

type fakeStore struct {
	data map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{data: make(map[string][]byte)} }

func (f *fakeStore) Exists(ctx context.Context, id string) (bool, error) {
	_, ok := f.data[id]
	return ok, nil
}
func (f *fakeStore) Save(ctx context.Context, id string, data []byte) error {
	f.data[id] = data
	return nil
}
func (f *fakeStore) Load(ctx context.Context, id string) ([]byte, error) {
	d, ok := f.data[id]
	if !ok {
		return nil, errNotFound
	}
	return d, nil
}
func (f *fakeStore) List(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.data))
	for id := range f.data {
		ids = append(ids, id)
	}
	return ids, nil
}
func (f *fakeStore) Delete(ctx context.Context, id string) error {
	delete(f.data, id)
	return nil
}

func TestRemoteCheckpointerRoundTripAndFork(t *testing.T) {
	store := NewRemoteCheckpointer(newFakeStore())
	ctx := context.Background()

	_, err := store.Save(ctx, sampleCheckpoint("cp1", "A"))
	require.NoError(t, err)

	loaded, err := store.Load(ctx, "cp1")
	require.NoError(t, err)
	assert.Equal(t, "A", loaded.AgentID)

	newID, err := store.Fork(ctx, "cp1", "B")
	require.NoError(t, err)
	forked, err := store.Load(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, "B", forked.AgentID)

	require.NoError(t, store.Delete(ctx, "cp1"))
	require.NoError(t, store.Delete(ctx, "cp1")) // idempotent
}

func TestHooksSaveAtEachLifecyclePoint(t *testing.T) {
	store := NewMemoryCheckpointer()
	hooks := NewHooks(store, nil)
	ctx := context.Background()

	hooks.BeforeModelCall(ctx, sampleCheckpoint("cp1", "A"))
	hooks.AfterModelCall(ctx, sampleCheckpoint("cp2", "A"))
	hooks.BeforeToolExecution(ctx, sampleCheckpoint("cp3", "A"))
	hooks.AfterToolExecution(ctx, sampleCheckpoint("cp4", "A"))
	hooks.OnIterationEnd(ctx, sampleCheckpoint("cp5", "A"))

	items, err := store.List(ctx, "A", ListOptions{})
	require.NoError(t, err)
	assert.Len(t, items, 5)
}

func TestHooksSwallowsSaveFailureViaOnSaveError(t *testing.T) {
	var phases []string
	hooks := NewHooks(&failingCheckpointer{}, func(phase string, err error) {
		phases = append(phases, phase)
	})

	hooks.BeforeModelCall(context.Background(), sampleCheckpoint("cp1", "A"))
	hooks.OnIterationEnd(context.Background(), sampleCheckpoint("cp1", "A"))

	assert.Equal(t, []string{"pre_model", "iteration_end"}, phases)
}

func TestHooksNilCheckpointerIsNoop(t *testing.T) {
	hooks := NewHooks(nil, nil)
	assert.NotPanics(t, func() {
		hooks.BeforeModelCall(context.Background(), sampleCheckpoint("cp1", "A"))
	})
}

type failingCheckpointer struct{}

func (f *failingCheckpointer) Save(ctx context.Context, cp *Checkpoint) (string, error) {
	return "", errors.New("save failed")
}
func (f *failingCheckpointer) Load(ctx context.Context, id string) (*Checkpoint, error) {
	return nil, errNotFound
}
func (f *failingCheckpointer) List(ctx context.Context, agentID string, opts ListOptions) ([]ListItem, error) {
	return nil, nil
}
func (f *failingCheckpointer) Delete(ctx context.Context, id string) error { return nil }
func (f *failingCheckpointer) Fork(ctx context.Context, id, newAgentID string) (string, error) {
	return "", nil
}
