// Package state implements the JSON-backed state store from spec.md §4.3:
// an in-memory map keyed by (issue, processor), persisted as a single file.
// The atomic-replace save discipline is grounded on bb's
// internal/registry.Registry.Save (temp file + chmod + rename), adapted
// from TOML to JSON and from a sprite phonebook to scheduler entries.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/misty-step/imploid/internal/model"
)

// Store is a single-writer, composite-keyed state table persisted as JSON.
// Every accessor and SaveAll take an RWMutex, so individual calls are safe
// from concurrent goroutines; a Get-modify-Set sequence on one key is not
// atomic and stays the caller's concern.
type Store struct {
	path string

	mu      sync.RWMutex
	entries map[model.Key]model.IssueState
}

// New returns a Store backed by path. Call Initialize before use.
func New(path string) *Store {
	return &Store{path: path, entries: make(map[model.Key]model.IssueState)}
}

// Initialize loads the file at path if present. A missing file is benign
// and leaves the store empty. Partial or corrupt entries are skipped
// rather than failing the whole load.
func (s *Store) Initialize() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("state: read %s: %w", s.path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("state: parse %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[model.Key]model.IssueState, len(raw))
	for rawKey, rawVal := range raw {
		key, err := parseKey(rawKey)
		if err != nil {
			continue // skip malformed key, warning is the caller's concern
		}
		var entry model.IssueState
		if err := json.Unmarshal(rawVal, &entry); err != nil {
			continue // skip corrupt entry
		}
		entry.IssueNumber = key.IssueNumber
		entry.ProcessorName = key.Processor
		s.entries[key] = entry
	}
	return nil
}

// parseKey accepts both "<issue>:<processor>" and legacy bare-integer keys,
// the latter interpreted as processor claude (spec.md §4.3).
func parseKey(raw string) (model.Key, error) {
	if idx := strings.LastIndex(raw, ":"); idx >= 0 {
		issueStr, procStr := raw[:idx], raw[idx+1:]
		issue, err := strconv.Atoi(issueStr)
		if err != nil {
			return model.Key{}, fmt.Errorf("state: bad key %q", raw)
		}
		return model.Key{IssueNumber: issue, Processor: model.ProcessorName(procStr)}, nil
	}
	issue, err := strconv.Atoi(raw)
	if err != nil {
		return model.Key{}, fmt.Errorf("state: bad key %q", raw)
	}
	return model.Key{IssueNumber: issue, Processor: model.ProcessorClaude}, nil
}

func formatKey(k model.Key) string {
	return fmt.Sprintf("%d:%s", k.IssueNumber, k.Processor)
}

// Get returns the entry for (issue, processor), if any.
func (s *Store) Get(issue int, processor model.ProcessorName) (model.IssueState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[model.Key{IssueNumber: issue, Processor: processor}]
	return entry, ok
}

// Set upserts the entry for (issue, processor), stamping UpdatedAt so
// watchdog staleness checks have a reliable "last touched" signal.
func (s *Store) Set(issue int, processor model.ProcessorName, entry model.IssueState) {
	entry.IssueNumber = issue
	entry.ProcessorName = processor
	entry.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[model.Key{IssueNumber: issue, Processor: processor}] = entry
}

// Remove deletes the entry for (issue, processor), if present.
func (s *Store) Remove(issue int, processor model.ProcessorName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, model.Key{IssueNumber: issue, Processor: processor})
}

// SaveAll writes the full map to a temp file and renames it into place.
func (s *Store) SaveAll() error {
	s.mu.RLock()
	raw := make(map[string]model.IssueState, len(s.entries))
	for key, entry := range s.entries {
		raw[formatKey(key)] = entry
	}
	s.mu.RUnlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "state-*.json")
	if err != nil {
		return fmt.Errorf("state: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(raw); err != nil {
		cleanup()
		return fmt.Errorf("state: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("state: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("state: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("state: rename into place: %w", err)
	}
	return nil
}

// ActiveStates returns all entries whose status counts toward slot
// occupancy (running or needs_input).
func (s *Store) ActiveStates() []model.IssueState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.IssueState
	for _, entry := range s.entries {
		if entry.Status.Active() {
			out = append(out, entry)
		}
	}
	sortByIssueThenProcessor(out)
	return out
}

// ActiveStatesByProcessor filters ActiveStates to a single processor.
func (s *Store) ActiveStatesByProcessor(p model.ProcessorName) []model.IssueState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.IssueState
	for _, entry := range s.entries {
		if entry.ProcessorName == p && entry.Status.Active() {
			out = append(out, entry)
		}
	}
	sortByIssueThenProcessor(out)
	return out
}

// ActiveIssueNumbers returns the union of issue numbers with an active
// state across all processors.
func (s *Store) ActiveIssueNumbers() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int]bool)
	for _, entry := range s.entries {
		if entry.Status.Active() {
			seen[entry.IssueNumber] = true
		}
	}
	out := make([]int, 0, len(seen))
	for issue := range seen {
		out = append(out, issue)
	}
	sort.Ints(out)
	return out
}

// ActiveIssueNumbersByProcessor returns active issue numbers for a single
// processor.
func (s *Store) ActiveIssueNumbersByProcessor(p model.ProcessorName) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int
	for _, entry := range s.entries {
		if entry.ProcessorName == p && entry.Status.Active() {
			out = append(out, entry.IssueNumber)
		}
	}
	sort.Ints(out)
	return out
}

// AvailableAgentIndex returns the smallest index in [0, maxConcurrent) not
// occupied by an active state of processor p, or nil if all are taken.
func (s *Store) AvailableAgentIndex(p model.ProcessorName, maxConcurrent int) *int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	occupied := make(map[int]bool, maxConcurrent)
	for _, entry := range s.entries {
		if entry.ProcessorName == p && entry.Status.Active() {
			occupied[entry.AgentIndex] = true
		}
	}
	for i := 0; i < maxConcurrent; i++ {
		if !occupied[i] {
			idx := i
			return &idx
		}
	}
	return nil
}

func sortByIssueThenProcessor(states []model.IssueState) {
	sort.Slice(states, func(i, j int) bool {
		if states[i].IssueNumber != states[j].IssueNumber {
			return states[i].IssueNumber < states[j].IssueNumber
		}
		return states[i].ProcessorName < states[j].ProcessorName
	})
}
