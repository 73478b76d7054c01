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

// Package pool implements the agent pool & room (C9): a capacity-bounded
// agent_id -> *agent.Agent registry with race-safe resume/fork, and a Room
// that routes messages between named members by mention or broadcast.
//
// Grounded on pkg/agent/registry.go's AgentRegistry/AgentRegistryError
// pattern, adapted from A2A server instances to generic *agent.Agent
// handles, kept in the pool's own mutex-guarded map.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/agentcore/runtime/pkg/agent"
	"github.com/agentcore/runtime/pkg/errs"
	"golang.org/x/sync/errgroup"
)

// Error mirrors the teacher's AgentRegistryError: a component/action/message
// wrapper distinguishing pool failures from the generic errs taxonomy.
type Error struct {
	Component string
	Action    string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Action, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(action, message string, err error) *Error {
	return &Error{Component: "Pool", Action: action, Message: message, Err: err}
}

// Factory builds or loads an *agent.Agent for id — typically a closure
// over a Config plus a checkpoint load. Used by Resume/ResumeAll.
type Factory func(ctx context.Context, id string) (*agent.Agent, error)

// Pool is a capacity-bounded, concurrency-safe map of agent_id -> Agent.
type Pool struct {
	mu        sync.Mutex
	agents    map[string]*agent.Agent
	maxAgents int
}

// New creates an empty pool. maxAgents <= 0 defaults to 50 per spec.
func New(maxAgents int) *Pool {
	if maxAgents <= 0 {
		maxAgents = 50
	}
	return &Pool{agents: make(map[string]*agent.Agent), maxAgents: maxAgents}
}

// Create registers a. It rejects duplicate ids and rejects when the pool is
// at capacity.
func (p *Pool) Create(id string, a *agent.Agent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.agents[id]; exists {
		return newError("Create", fmt.Sprintf("agent %q already registered", id), nil)
	}
	if len(p.agents) >= p.maxAgents {
		return newError("Create", fmt.Sprintf("pool is at capacity (%d)", p.maxAgents), nil)
	}
	p.agents[id] = a
	slog.Info("agent registered in pool", "agent", id, "pool_size", len(p.agents))
	return nil
}

// Get returns the agent registered under id, if any.
func (p *Pool) Get(id string) (*agent.Agent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[id]
	return a, ok
}

// List returns every registered agent whose id has the given prefix. An
// empty prefix matches everything.
func (p *Pool) List(prefix string) []*agent.Agent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*agent.Agent, 0, len(p.agents))
	for id, a := range p.agents {
		if strings.HasPrefix(id, prefix) {
			out = append(out, a)
		}
	}
	return out
}

// Status returns the status of the agent registered under id.
func (p *Pool) Status(id string) (agent.Status, error) {
	a, ok := p.Get(id)
	if !ok {
		return agent.Status{}, errs.NotFound(id, fmt.Sprintf("agent %q not found", id))
	}
	return a.Status(), nil
}

// Resume returns the agent already registered under id, if present.
// Otherwise it calls build to construct/load one and registers it. If a
// concurrent Resume or Create won the race in the meantime, the loser's
// freshly built agent is disposed and the winner is returned — "loser
// disposes" per the concurrency model.
func (p *Pool) Resume(ctx context.Context, id string, build Factory) (*agent.Agent, error) {
	if existing, ok := p.Get(id); ok {
		return existing, nil
	}

	built, err := build(ctx, id)
	if err != nil {
		return nil, newError("Resume", fmt.Sprintf("failed to resume agent %q", id), err)
	}

	p.mu.Lock()
	if existing, ok := p.agents[id]; ok {
		p.mu.Unlock()
		built.DisposeAsync()
		return existing, nil
	}
	if len(p.agents) >= p.maxAgents {
		p.mu.Unlock()
		built.DisposeAsync()
		return nil, newError("Resume", fmt.Sprintf("pool is at capacity (%d)", p.maxAgents), nil)
	}
	p.agents[id] = built
	p.mu.Unlock()

	slog.Info("agent resumed into pool", "agent", id)
	return built, nil
}

// ResumeAll calls Resume for every id, collecting the resumed agents. It
// continues past individual failures and returns the first error
// encountered, if any, alongside whatever agents did resume successfully.
func (p *Pool) ResumeAll(ctx context.Context, ids []string, build Factory) ([]*agent.Agent, error) {
	out := make([]*agent.Agent, 0, len(ids))
	var firstErr error
	for _, id := range ids {
		a, err := p.Resume(ctx, id, build)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, a)
	}
	return out, firstErr
}

// Fork forks the agent registered under id into a new agent under newID,
// then registers the forked agent in this pool (subject to the same
// duplicate/capacity checks as Create).
func (p *Pool) Fork(ctx context.Context, id, newID string) (*agent.Agent, error) {
	src, ok := p.Get(id)
	if !ok {
		return nil, errs.NotFound(id, fmt.Sprintf("agent %q not found", id))
	}

	forked, err := src.Fork(ctx, newID)
	if err != nil {
		return nil, newError("Fork", fmt.Sprintf("failed to fork agent %q into %q", id, newID), err)
	}

	if err := p.Create(newID, forked); err != nil {
		forked.DisposeAsync()
		return nil, err
	}
	return forked, nil
}

// Delete removes the agent registered under id and disposes it. It is a
// no-op if id is not registered.
func (p *Pool) Delete(id string) error {
	p.mu.Lock()
	a, ok := p.agents[id]
	if ok {
		delete(p.agents, id)
	}
	p.mu.Unlock()

	if ok {
		a.DisposeAsync()
		slog.Info("agent deleted from pool", "agent", id)
	}
	return nil
}

// Remove removes the agent registered under id without disposing it,
// leaving its checkpoint and any external lifecycle intact.
func (p *Pool) Remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.agents, id)
	return nil
}

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// RoomMessage is one entry of a Room's append-only history.
type RoomMessage struct {
	From string
	To   string // empty for a broadcast
	Text string
}

// Room routes text between named members, each backed by a pool-resident
// agent. Say mention-routes or broadcasts; Whisper always targets exactly
// one member.
type Room struct {
	pool *Pool

	mu      sync.Mutex
	members map[string]string // member name -> agent id
	history []RoomMessage
}

// NewRoom creates an empty room whose member agents live in pool.
func NewRoom(pool *Pool) *Room {
	return &Room{pool: pool, members: make(map[string]string)}
}

// Join registers name as a member backed by agentID.
func (r *Room) Join(name, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[name] = agentID
}

// Leave removes name from the room's membership.
func (r *Room) Leave(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, name)
}

// Members returns a snapshot of the current member name set.
func (r *Room) Members() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.members))
	for k, v := range r.members {
		out[k] = v
	}
	return out
}

func (r *Room) resolve(name string) (*agent.Agent, bool) {
	r.mu.Lock()
	agentID, ok := r.members[name]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return r.pool.Get(agentID)
}

func (r *Room) appendHistory(msg RoomMessage) {
	r.mu.Lock()
	r.history = append(r.history, msg)
	r.mu.Unlock()
}

// History returns a defensive copy of the room's message history.
func (r *Room) History() []RoomMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RoomMessage, len(r.history))
	copy(out, r.history)
	return out
}

// Say extracts @name mentions from text. If any are found, it delivers
// "[from:<from>] <text>" only to the mentioned members; otherwise it
// broadcasts the same formatted message to every member except from,
// concurrently, awaiting all deliveries. History is appended before
// dispatch, exactly once, regardless of recipient count.
func (r *Room) Say(ctx context.Context, from, text string) error {
	formatted := fmt.Sprintf("[from:%s] %s", from, text)
	r.appendHistory(RoomMessage{From: from, Text: text})

	// Plain errgroup.Group, not WithContext: one recipient's failure must
	// not cancel delivery to its siblings (§5 concurrency model).
	var g errgroup.Group

	mentions := uniqueMentions(text)
	if len(mentions) > 0 {
		for _, name := range mentions {
			target, ok := r.resolve(name)
			if !ok {
				continue // unknown mention: silently skipped, not a routing failure
			}
			g.Go(func() error {
				_, err := target.RunAsync(ctx, formatted)
				return err
			})
		}
		return g.Wait()
	}

	for name, agentID := range r.Members() {
		if name == from {
			continue
		}
		target, ok := r.pool.Get(agentID)
		if !ok {
			continue
		}
		g.Go(func() error {
			_, err := target.RunAsync(ctx, formatted)
			return err
		})
	}
	return g.Wait()
}

func uniqueMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// Whisper sends "[whisper from:<from>] <text>" to exactly one member,
// appending to history before dispatch. An unknown member fails NotFound.
func (r *Room) Whisper(ctx context.Context, from, to, text string) error {
	target, ok := r.resolve(to)
	if !ok {
		return errs.NotFound(to, fmt.Sprintf("room member %q not found", to))
	}

	r.appendHistory(RoomMessage{From: from, To: to, Text: text})
	formatted := fmt.Sprintf("[whisper from:%s] %s", from, text)
	_, err := target.RunAsync(ctx, formatted)
	return err
}
