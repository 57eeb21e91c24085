// Package usage accumulates token consumption per session and per agent.
//
// The Tracker is the only process-wide mutable structure of the execution
// engine. Keys are spread over a fixed number of shards, each guarded by its
// own RWMutex, so unrelated sessions do not serialize on a single lock.
// Every per-key accumulation happens inside one critical section.
package usage

import (
	"hash/fnv"
	"sort"
	"sync"
)

const shardCount = 32

// Report is a snapshot of accumulated usage for one key.
type Report struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
	RequestCount int `json:"request_count"`
}

// Add accumulates one request into r.
func (r *Report) Add(inputTokens, outputTokens int) {
	r.InputTokens += inputTokens
	r.OutputTokens += outputTokens
	r.TotalTokens += inputTokens + outputTokens
	r.RequestCount++
}

// Merge adds the counters of o into r.
func (r *Report) Merge(o Report) {
	r.InputTokens += o.InputTokens
	r.OutputTokens += o.OutputTokens
	r.TotalTokens += o.TotalTokens
	r.RequestCount += o.RequestCount
}

type shard struct {
	mu      sync.RWMutex
	reports map[string]*Report
}

// table is a sharded string -> *Report map.
type table struct {
	shards [shardCount]shard
}

func newTable() *table {
	t := &table{}
	for i := range t.shards {
		t.shards[i].reports = make(map[string]*Report)
	}
	return t
}

func (t *table) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &t.shards[h.Sum32()%shardCount]
}

func (t *table) add(key string, in, out int) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[key]
	if !ok {
		r = &Report{}
		s.reports[key] = r
	}
	r.Add(in, out)
}

func (t *table) get(key string) (Report, bool) {
	s := t.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[key]
	if !ok {
		return Report{}, false
	}
	return *r, true
}

func (t *table) remove(key string) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, key)
}

func (t *table) keys() []string {
	var keys []string
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		for k := range s.reports {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys
}

func (t *table) sum() Report {
	var total Report
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		for _, r := range s.reports {
			total.Merge(*r)
		}
		s.mu.RUnlock()
	}
	return total
}

// Tracker is a concurrency-safe accumulator keyed by session and by agent.
// The zero value is not usable; create one with NewTracker.
type Tracker struct {
	sessions *table
	agents   *table
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: newTable(), agents: newTable()}
}

// RecordRequest adds one request to both the session and the agent entry,
// creating either on first use.
func (t *Tracker) RecordRequest(sessionKey, agentID string, inputTokens, outputTokens int) {
	t.sessions.add(sessionKey, inputTokens, outputTokens)
	t.agents.add(agentID, inputTokens, outputTokens)
}

// SessionUsage returns a copy of the session's report.
func (t *Tracker) SessionUsage(sessionKey string) (Report, bool) { return t.sessions.get(sessionKey) }

// AgentUsage returns a copy of the agent's report.
func (t *Tracker) AgentUsage(agentID string) (Report, bool) { return t.agents.get(agentID) }

// ResetSession removes the session entry. Agent entries are kept.
func (t *Tracker) ResetSession(sessionKey string) { t.sessions.remove(sessionKey) }

// SessionKeys lists the tracked sessions, sorted. The list may be stale as
// soon as it is returned.
func (t *Tracker) SessionKeys() []string { return t.sessions.keys() }

// AgentKeys lists the tracked agents, sorted.
func (t *Tracker) AgentKeys() []string { return t.agents.keys() }

// Totals sums every agent report.
func (t *Tracker) Totals() Report { return t.agents.sum() }
