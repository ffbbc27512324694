// Package names translates between the human-readable state and trigger
// names of a machine definition and the opaque ids the engine works with.
//
// The engine never sees a name. A Table is owned by whoever builds the
// machine (package binding, the CLI) and is persisted next to recorded
// traces so they can be rendered later.
package names

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/mstate/internal/ir"
)

// Undefined is rendered for ids the table has never assigned.
const Undefined = "(undefined)"

// Entry is one id/name pair.
type Entry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Table is a pair of bidirectional name maps, one for states and one for
// triggers. Names are NFC-normalized before lookup so visually identical
// names map to the same id.
//
// State ids are assigned from 0 and trigger ids from 1 in first-sight
// order. "*" always names ir.StateFinal and "" always names
// ir.TriggerNone.
//
// Safe for concurrent use.
type Table struct {
	mu           sync.RWMutex
	stateIDs     map[string]ir.StateID
	stateNames   []string
	triggerIDs   map[string]ir.TriggerID
	triggerNames []string // index 0 is TriggerNone
}

// New returns an empty table.
func New() *Table {
	return &Table{
		stateIDs:     make(map[string]ir.StateID),
		triggerIDs:   make(map[string]ir.TriggerID),
		triggerNames: []string{ir.CompletionTriggerName},
	}
}

// State returns the id for name, assigning the next id on first sight.
func (t *Table) State(name string) ir.StateID {
	name = norm.NFC.String(name)
	if name == ir.FinalStateName {
		return ir.StateFinal
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.stateIDs[name]; ok {
		return id
	}
	id := ir.StateID(len(t.stateNames))
	t.stateIDs[name] = id
	t.stateNames = append(t.stateNames, name)
	return id
}

// Trigger returns the id for name, assigning the next id on first sight.
func (t *Table) Trigger(name string) ir.TriggerID {
	name = norm.NFC.String(name)
	if name == ir.CompletionTriggerName {
		return ir.TriggerNone
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.triggerIDs[name]; ok {
		return id
	}
	id := ir.TriggerID(len(t.triggerNames))
	t.triggerIDs[name] = id
	t.triggerNames = append(t.triggerNames, name)
	return id
}

// LookupState returns the id for name without assigning one.
func (t *Table) LookupState(name string) (ir.StateID, bool) {
	name = norm.NFC.String(name)
	if name == ir.FinalStateName {
		return ir.StateFinal, true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.stateIDs[name]
	return id, ok
}

// LookupTrigger returns the id for name without assigning one.
func (t *Table) LookupTrigger(name string) (ir.TriggerID, bool) {
	name = norm.NFC.String(name)
	if name == ir.CompletionTriggerName {
		return ir.TriggerNone, true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.triggerIDs[name]
	return id, ok
}

// StateName renders id. Both sentinels render as "*".
func (t *Table) StateName(id ir.StateID) string {
	if id.IsTerminal() {
		return ir.FinalStateName
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) < len(t.stateNames) {
		return t.stateNames[id]
	}
	return Undefined
}

// TriggerName renders id. ir.TriggerNone renders as "".
func (t *Table) TriggerName(id ir.TriggerID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id >= 0 && int(id) < len(t.triggerNames) {
		return t.triggerNames[id]
	}
	return Undefined
}

// States returns the assigned states ordered by id.
func (t *Table) States() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.stateNames))
	for i, n := range t.stateNames {
		out[i] = Entry{ID: i, Name: n}
	}
	return out
}

// Triggers returns the assigned triggers ordered by id, excluding
// ir.TriggerNone.
func (t *Table) Triggers() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.triggerNames)-1)
	for i, n := range t.triggerNames[1:] {
		out = append(out, Entry{ID: i + 1, Name: n})
	}
	return out
}

// Restore rebuilds a table from persisted entries. Ids must be dense:
// states 0..n-1 and triggers 1..n.
func Restore(states, triggers []Entry) (*Table, error) {
	t := New()

	states = sortedCopy(states)
	for i, e := range states {
		if e.ID != i {
			return nil, fmt.Errorf("restore states: expected id %d, got %d (%q)", i, e.ID, e.Name)
		}
		if got := t.State(e.Name); int(got) != e.ID {
			return nil, fmt.Errorf("restore states: duplicate or reserved name %q", e.Name)
		}
	}

	triggers = sortedCopy(triggers)
	for i, e := range triggers {
		if e.ID != i+1 {
			return nil, fmt.Errorf("restore triggers: expected id %d, got %d (%q)", i+1, e.ID, e.Name)
		}
		if got := t.Trigger(e.Name); int(got) != e.ID {
			return nil, fmt.Errorf("restore triggers: duplicate or reserved name %q", e.Name)
		}
	}
	return t, nil
}

func sortedCopy(in []Entry) []Entry {
	out := make([]Entry, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
