// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package checkpoint implements the checkpoint store (C6): immutable
// snapshots of an agent's history and runtime state, with Save/Load/List/
// Delete/Fork across three backends (in-memory, file-per-entity, remote
// key-value).
//
// Grounded on pkg/checkpoint/manager.go (hook integration points,
// slog.Warn-on-failure idiom) and pkg/checkpoint/state.go/storage.go
// (phase/type string consts, directory-per-entity file layout).
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/agentcore/runtime/pkg/errs"
	"github.com/agentcore/runtime/pkg/message"
)

// Checkpoint is an immutable snapshot of one agent at a point in time.
// Wire form is camelCase; State uses message.RuntimeState's
// UPPER_SNAKE_CASE compatibility decoder; Timestamp is unix milliseconds.
type Checkpoint struct {
	ID          string                `json:"id"`
	AgentID     string                `json:"agentId"`
	SessionID   string                `json:"sessionId,omitempty"`
	Timestamp   int64                 `json:"timestamp"`
	Messages    []message.Message     `json:"messages"`
	State       message.RuntimeState  `json:"state"`
	IsForkPoint bool                  `json:"isForkPoint,omitempty"`
	Tags        []string              `json:"tags,omitempty"`
	Metadata    map[string]any        `json:"metadata,omitempty"`
}

// ListItem is the summary row returned by List, ordered by Timestamp
// descending.
type ListItem struct {
	ID          string   `json:"id"`
	AgentID     string   `json:"agentId"`
	SessionID   string   `json:"sessionId,omitempty"`
	Timestamp   int64    `json:"timestamp"`
	IsForkPoint bool     `json:"isForkPoint,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// ListOptions filters and paginates List.
type ListOptions struct {
	SessionID string
	Offset    int
	Limit     int
}

// Checkpointer is the contract every backend implements.
type Checkpointer interface {
	Save(ctx context.Context, cp *Checkpoint) (string, error)
	Load(ctx context.Context, id string) (*Checkpoint, error)
	List(ctx context.Context, agentID string, opts ListOptions) ([]ListItem, error)
	Delete(ctx context.Context, id string) error
	Fork(ctx context.Context, id, newAgentID string) (string, error)
}

// Store is the external key-value collaborator a RemoteCheckpointer wraps.
type Store interface {
	Exists(ctx context.Context, id string) (bool, error)
	Save(ctx context.Context, id string, data []byte) error
	Load(ctx context.Context, id string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}

func clone(cp *Checkpoint) (*Checkpoint, error) {
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, err
	}
	var out Checkpoint
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func toListItem(cp *Checkpoint) ListItem {
	return ListItem{
		ID:          cp.ID,
		AgentID:     cp.AgentID,
		SessionID:   cp.SessionID,
		Timestamp:   cp.Timestamp,
		IsForkPoint: cp.IsForkPoint,
		Tags:        cp.Tags,
	}
}

func filterAndPage(items []ListItem, opts ListOptions) []ListItem {
	filtered := items[:0:0]
	for _, it := range items {
		if opts.SessionID != "" && it.SessionID != opts.SessionID {
			continue
		}
		filtered = append(filtered, it)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Timestamp > filtered[j].Timestamp
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(filtered) {
			return nil
		}
		filtered = filtered[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(filtered) {
		filtered = filtered[:opts.Limit]
	}
	return filtered
}

func forkFrom(cp *Checkpoint, newAgentID, newID string) *Checkpoint {
	forked, _ := clone(cp)
	forked.ID = newID
	forked.AgentID = newAgentID
	forked.Timestamp = time.Now().UnixMilli()
	forked.IsForkPoint = true
	if forked.Metadata == nil {
		forked.Metadata = make(map[string]any)
	}
	forked.Metadata["parent_checkpoint_id"] = cp.ID
	return forked
}

// MemoryCheckpointer stores checkpoints in a concurrent map, cloning on
// every save and load so no caller retains a reference to live store state.
type MemoryCheckpointer struct {
	mu   sync.RWMutex
	data map[string]*Checkpoint
}

// NewMemoryCheckpointer creates an empty in-memory checkpoint store.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{data: make(map[string]*Checkpoint)}
}

func (m *MemoryCheckpointer) Save(ctx context.Context, cp *Checkpoint) (string, error) {
	saved, err := clone(cp)
	if err != nil {
		return "", errs.CheckpointFailed(cp.ID, "save failed", err)
	}

	m.mu.Lock()
	m.data[saved.ID] = saved
	m.mu.Unlock()
	return saved.ID, nil
}

func (m *MemoryCheckpointer) Load(ctx context.Context, id string) (*Checkpoint, error) {
	m.mu.RLock()
	cp, ok := m.data[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errs.CheckpointFailed(id, "checkpoint not found", nil)
	}
	return clone(cp)
}

func (m *MemoryCheckpointer) List(ctx context.Context, agentID string, opts ListOptions) ([]ListItem, error) {
	m.mu.RLock()
	items := make([]ListItem, 0, len(m.data))
	for _, cp := range m.data {
		if cp.AgentID == agentID {
			items = append(items, toListItem(cp))
		}
	}
	m.mu.RUnlock()
	return filterAndPage(items, opts), nil
}

func (m *MemoryCheckpointer) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.data, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCheckpointer) Fork(ctx context.Context, id, newAgentID string) (string, error) {
	cp, err := m.Load(ctx, id)
	if err != nil {
		return "", err
	}
	newID := fmt.Sprintf("%s:%d", newAgentID, time.Now().UnixMilli())
	forked := forkFrom(cp, newAgentID, newID)
	return m.Save(ctx, forked)
}

// FileCheckpointer writes one JSON document per checkpoint under
// <base>/<agent_id>/checkpoints/<id>.json and skips corrupt files during
// List rather than failing the whole listing.
type FileCheckpointer struct {
	base string
	mu   sync.Mutex
}

// NewFileCheckpointer creates a file-backed checkpoint store rooted at base.
func NewFileCheckpointer(base string) *FileCheckpointer {
	return &FileCheckpointer{base: base}
}

func (f *FileCheckpointer) pathFor(agentID, id string) string {
	return filepath.Join(f.base, agentID, "checkpoints", id+".json")
}

func (f *FileCheckpointer) Save(ctx context.Context, cp *Checkpoint) (string, error) {
	saved, err := clone(cp)
	if err != nil {
		return "", errs.CheckpointFailed(cp.ID, "save failed", err)
	}

	path := f.pathFor(saved.AgentID, saved.ID)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errs.CheckpointFailed(cp.ID, "mkdir failed", err)
	}
	data, err := json.Marshal(saved)
	if err != nil {
		return "", errs.CheckpointFailed(cp.ID, "marshal failed", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errs.CheckpointFailed(cp.ID, "write failed", err)
	}
	return saved.ID, nil
}

// findFile walks every agent directory under base looking for id.json,
// since Load is not given the owning agent id.
func (f *FileCheckpointer) findFile(id string) (string, error) {
	var found string
	err := filepath.WalkDir(f.base, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if d.Name() == id+".json" {
			found = path
		}
		return nil
	})
	if err != nil || found == "" {
		return "", errs.CheckpointFailed(id, "checkpoint not found", nil)
	}
	return found, nil
}

func (f *FileCheckpointer) Load(ctx context.Context, id string) (*Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path, err := f.findFile(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.CheckpointFailed(id, "read failed", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errs.CheckpointFailed(id, "corrupt checkpoint file", err)
	}
	return &cp, nil
}

func (f *FileCheckpointer) List(ctx context.Context, agentID string, opts ListOptions) ([]ListItem, error) {
	dir := filepath.Join(f.base, agentID, "checkpoints")

	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.CheckpointFailed("", "list failed", err)
	}

	items := make([]ListItem, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue // corrupt/unreadable file: skip, don't fail the list
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue // corrupt file: skip
		}
		items = append(items, toListItem(&cp))
	}
	return filterAndPage(items, opts), nil
}

func (f *FileCheckpointer) Delete(ctx context.Context, id string) error {
	path, err := f.findFile(id)
	if err != nil {
		return nil // idempotent: missing id is not an error
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.CheckpointFailed(id, "delete failed", err)
	}
	return nil
}

func (f *FileCheckpointer) Fork(ctx context.Context, id, newAgentID string) (string, error) {
	cp, err := f.Load(ctx, id)
	if err != nil {
		return "", err
	}
	newID := fmt.Sprintf("%s_%d", newAgentID, time.Now().UnixMilli())
	forked := forkFrom(cp, newAgentID, newID)
	return f.Save(ctx, forked)
}

// RemoteCheckpointer wraps an injected Store (a generic external KV
// collaborator), serializing checkpoints as JSON blobs keyed by id.
type RemoteCheckpointer struct {
	store Store
}

// NewRemoteCheckpointer wraps store as a checkpoint backend.
func NewRemoteCheckpointer(store Store) *RemoteCheckpointer {
	return &RemoteCheckpointer{store: store}
}

func (r *RemoteCheckpointer) Save(ctx context.Context, cp *Checkpoint) (string, error) {
	saved, err := clone(cp)
	if err != nil {
		return "", errs.CheckpointFailed(cp.ID, "save failed", err)
	}
	data, err := json.Marshal(saved)
	if err != nil {
		return "", errs.CheckpointFailed(cp.ID, "marshal failed", err)
	}
	if err := r.store.Save(ctx, saved.ID, data); err != nil {
		return "", errs.CheckpointFailed(cp.ID, "remote save failed", err)
	}
	return saved.ID, nil
}

func (r *RemoteCheckpointer) Load(ctx context.Context, id string) (*Checkpoint, error) {
	data, err := r.store.Load(ctx, id)
	if err != nil {
		return nil, errs.CheckpointFailed(id, "remote load failed", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errs.CheckpointFailed(id, "corrupt checkpoint payload", err)
	}
	return &cp, nil
}

func (r *RemoteCheckpointer) List(ctx context.Context, agentID string, opts ListOptions) ([]ListItem, error) {
	ids, err := r.store.List(ctx)
	if err != nil {
		return nil, errs.CheckpointFailed("", "remote list failed", err)
	}

	items := make([]ListItem, 0, len(ids))
	for _, id := range ids {
		cp, err := r.Load(ctx, id)
		if err != nil {
			continue // corrupt/unreadable entry: skip, don't fail the list
		}
		if cp.AgentID == agentID {
			items = append(items, toListItem(cp))
		}
	}
	return filterAndPage(items, opts), nil
}

func (r *RemoteCheckpointer) Delete(ctx context.Context, id string) error {
	exists, err := r.store.Exists(ctx, id)
	if err != nil {
		return errs.CheckpointFailed(id, "remote exists check failed", err)
	}
	if !exists {
		return nil // idempotent
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return errs.CheckpointFailed(id, "remote delete failed", err)
	}
	return nil
}

func (r *RemoteCheckpointer) Fork(ctx context.Context, id, newAgentID string) (string, error) {
	cp, err := r.Load(ctx, id)
	if err != nil {
		return "", err
	}
	newID := fmt.Sprintf("%s:%d", newAgentID, time.Now().UnixMilli())
	forked := forkFrom(cp, newAgentID, newID)
	return r.Save(ctx, forked)
}

var (
	_ Checkpointer = (*MemoryCheckpointer)(nil)
	_ Checkpointer = (*FileCheckpointer)(nil)
	_ Checkpointer = (*RemoteCheckpointer)(nil)
)

// Hooks are convenience lifecycle callbacks an agent's step loop invokes
// around save points, swallowing and logging failures rather than
// propagating them — a failed intermediate checkpoint must not abort the
// turn. Grounded on pkg/checkpoint/manager.go's CheckpointHooks.
type Hooks struct {
	checkpointer Checkpointer
	onSaveError  func(phase string, err error)
}

// NewHooks wraps checkpointer with the lifecycle convenience methods below.
// onSaveError, if nil, defaults to a no-op (callers typically pass a
// slog.Warn-backed logger).
func NewHooks(checkpointer Checkpointer, onSaveError func(phase string, err error)) *Hooks {
	if onSaveError == nil {
		onSaveError = func(string, error) {}
	}
	return &Hooks{checkpointer: checkpointer, onSaveError: onSaveError}
}

func (h *Hooks) save(ctx context.Context, phase string, cp *Checkpoint) {
	if h == nil || h.checkpointer == nil {
		return
	}
	if _, err := h.checkpointer.Save(ctx, cp); err != nil {
		h.onSaveError(phase, err)
	}
}

// BeforeModelCall checkpoints immediately before a model round-trip.
func (h *Hooks) BeforeModelCall(ctx context.Context, cp *Checkpoint) { h.save(ctx, "pre_model", cp) }

// AfterModelCall checkpoints immediately after a model round-trip.
func (h *Hooks) AfterModelCall(ctx context.Context, cp *Checkpoint) { h.save(ctx, "post_model", cp) }

// BeforeToolExecution checkpoints immediately before a step's tool calls run.
func (h *Hooks) BeforeToolExecution(ctx context.Context, cp *Checkpoint) {
	h.save(ctx, "pre_tool", cp)
}

// AfterToolExecution checkpoints immediately after a step's tool calls ran.
func (h *Hooks) AfterToolExecution(ctx context.Context, cp *Checkpoint) {
	h.save(ctx, "post_tool", cp)
}

// OnIterationEnd checkpoints at the end of a step loop iteration.
func (h *Hooks) OnIterationEnd(ctx context.Context, cp *Checkpoint) {
	h.save(ctx, "iteration_end", cp)
}
