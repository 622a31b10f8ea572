// Package site implements the version store: one replica holding an
// append-only commit history per variable, plus the failure/recovery
// interval bookkeeping the Coordinator consults on every read and end.
package site

import (
	"log/slog"
	"sort"

	"repcrec/internal/variable"
)

// entry is a single commit history record. unreadable marks the
// sentinel a recovered replica carries for its replicated variables:
// a distinguished value variant rather than a separate tombstone map,
// so readers only ever scan one slice per variable.
type entry struct {
	commitTime int
	value      int64
	unreadable bool
}

// Site is a single replica: identity, up/down status, and one commit
// history per variable it holds.
type Site struct {
	ID int

	up      bool
	history map[string][]entry

	failures   []int // fail() timestamps
	recoveries []int // recover() timestamps, i-th pairs with i-th failure

	logger *slog.Logger
}

// New creates a site and seeds the commit history of every variable it
// holds with the initial value, committed at logical time 0.
func New(id int, logger *slog.Logger) *Site {
	s := &Site{
		ID:      id,
		up:      true,
		history: make(map[string][]entry),
		logger:  logger,
	}
	for i := 1; i <= variable.Count; i++ {
		if !variable.HeldBySite(i, id) {
			continue
		}
		name := variable.Name(i)
		s.history[name] = []entry{{commitTime: 0, value: variable.InitialValue(i)}}
	}
	return s
}

func (s *Site) IsUp() bool {
	return s.up
}

// Holds reports whether this site carries a copy of variable at all.
func (s *Site) Holds(varName string) bool {
	_, ok := s.history[varName]
	return ok
}

// Fail marks the site down at t. In-flight transactions that already
// touched this site are not aborted here — the Coordinator marks them
// doomed instead, so output stays in command order instead of
// interrupting whatever is printing; the actual abort happens at the
// doomed transaction's own end().
func (s *Site) Fail(t int) {
	s.up = false
	s.failures = append(s.failures, t)
	s.logger.Debug("site fails", "site", s.ID, "time", t)
}

// Recover marks the site up at t. Every replicated variable the site
// holds gets an unreadable sentinel at t: a recovered replica cannot
// be trusted to have missed updates, so it stays unreadable until a
// subsequent commit actually lands there. Non-replicated variables
// need no such mark — this site is their only home, so nothing could
// have been missed.
func (s *Site) Recover(t int) {
	s.up = true
	s.recoveries = append(s.recoveries, t)
	for i := 1; i <= variable.Count; i++ {
		if !variable.IsReplicated(i) {
			continue
		}
		name := variable.Name(i)
		if _, ok := s.history[name]; !ok {
			continue
		}
		s.history[name] = append(s.history[name], entry{commitTime: t, unreadable: true})
	}
	s.logger.Debug("site recovers", "site", s.ID, "time", t)
}

// Write appends a committed value to variable's history. Only called
// by the Coordinator at commit time, against sites that are up and
// hold the variable.
func (s *Site) Write(varName string, value int64, t int) {
	s.history[varName] = append(s.history[varName], entry{commitTime: t, value: value})
}

// LastCommittedValue returns the value of the newest entry with
// commit_time <= at. ok is false if there is no such entry or if that
// entry is the unreadable sentinel — the site then holds no valid
// snapshot of the variable for at. An older real value behind a
// sentinel is not returned.
func (s *Site) LastCommittedValue(varName string, at int) (value int64, ok bool) {
	h := s.history[varName]
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].commitTime > at {
			continue
		}
		if h[i].unreadable {
			return 0, false
		}
		return h[i].value, true
	}
	return 0, false
}

// Readable reports whether a snapshot at `at` is not masked by an
// unreadable sentinel, i.e. the newest entry with commit_time <= at is
// a real value rather than a post-recovery mark.
func (s *Site) Readable(varName string, at int) bool {
	_, ok := s.LastCommittedValue(varName, at)
	return ok
}

// lastCommitTime returns the newest commit time recorded for a
// variable regardless of sentinel status, or 0 if nothing was ever
// committed (matching the initial-value commit at time 0).
func (s *Site) lastCommitTime(varName string) int {
	h := s.history[varName]
	if len(h) == 0 {
		return 0
	}
	return h[len(h)-1].commitTime
}

// WasUpContinuously reports whether no downtime interval
// [fail_k, recover_k) overlaps [start, end). An open tail (site
// currently down) counts as downtime through +Inf.
func (s *Site) WasUpContinuously(start, end int) bool {
	for k, failAt := range s.failures {
		recoverAt := -1
		open := true
		if k < len(s.recoveries) {
			recoverAt = s.recoveries[k]
			open = false
		}
		if open {
			if failAt < end {
				return false
			}
			continue
		}
		if failAt < end && recoverAt > start {
			return false
		}
	}
	return true
}

// ReadableSnapshot resolves the full read path for a single site:
// up, holds the variable, was up continuously since the variable's
// last commit, and the snapshot isn't sentinel-masked.
func (s *Site) ReadableSnapshot(varName string, at int) (value int64, ok bool) {
	if !s.up || !s.Holds(varName) {
		return 0, false
	}
	if !s.WasUpContinuously(s.lastCommitTime(varName), at) {
		return 0, false
	}
	return s.LastCommittedValue(varName, at)
}

// Dump renders "x1: v1, x2: v2, ..." for every variable this site
// holds, sorted by variable index, as of logical time `at`. Each value
// is the newest non-sentinel entry with commit_time <= at, so a
// recovery's unreadable sentinel does not change what a dump prints. A
// variable with no such entry falls back to its initial value, which
// mirrors the original implementation's fallback in
// get_last_committed_value.
func (s *Site) Dump(at int) []VariableValue {
	names := make([]string, 0, len(s.history))
	for name := range s.history {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ii, _ := variable.Index(names[i])
		jj, _ := variable.Index(names[j])
		return ii < jj
	})

	out := make([]VariableValue, 0, len(names))
	for _, name := range names {
		var v int64
		ok := false
		h := s.history[name]
		for i := len(h) - 1; i >= 0; i-- {
			if h[i].commitTime <= at && !h[i].unreadable {
				v, ok = h[i].value, true
				break
			}
		}
		if !ok {
			idx, _ := variable.Index(name)
			v = variable.InitialValue(idx)
		}
		out = append(out, VariableValue{Name: name, Value: v})
	}
	return out
}

// VariableValue is one (name, value) pair of a site dump.
type VariableValue struct {
	Name  string
	Value int64
}

// GC drops commit-history entries that no active transaction's snapshot
// can still reach, keeping memory bounded on long-running scripts. For
// each variable it keeps the newest non-sentinel entry with commit_time
// <= oldestActiveStart (the floor any present or future snapshot read or
// dump can land on) plus everything after it; older entries are
// unreachable because no active transaction started before
// oldestActiveStart and no future one can either.
func (s *Site) GC(oldestActiveStart int) {
	for name, h := range s.history {
		keepFrom := -1
		for i := len(h) - 1; i >= 0; i-- {
			if h[i].commitTime <= oldestActiveStart && !h[i].unreadable {
				keepFrom = i
				break
			}
		}
		if keepFrom <= 0 {
			continue
		}
		s.history[name] = append([]entry(nil), h[keepFrom:]...)
	}
}
