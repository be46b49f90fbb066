/*
Package version tracks the audit history of a loan's amortization state.

PURPOSE:
  Every servicer action on a loan (override added, extension toggled,
  payment recorded) changes the generated schedule. The Manager snapshots
  full engine state on commit, diffs it against the previous commit, and
  keeps the resulting versions in an append-only history that supports
  preview, rollback, and soft deletion.

KEY CONCEPTS:
  Dual diff:   input changes capture servicer intent, output changes
               capture the regenerated schedule. Machine-derived fields
               never appear as input changes.
  Rollback:    rebuilds a fresh engine from the target snapshot and swaps
               it in wholesale, then commits a new version flagged as a
               rollback. History is never rewritten.
  Soft delete: versions carry a tombstone; the ordered history keeps its
               numbering so external audit references stay stable.

OWNERSHIP:
  The Manager owns the live engine reference and the version history. One
  manager per loan, one logical writer at a time; independent loans are
  independent managers.

SEE ALSO:
  - amort/snapshot.go: the snapshot shape and generated-path tables
  - diff.go: the structural comparison and path routing
*/
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/lending-engine/amort"
)

// =============================================================================
// MANAGER
// =============================================================================

type Manager struct {
	engine *amort.Engine
	store  Store
	diff   DiffConfig

	counter int
	// last committed snapshot; nil means the next diff runs against the
	// empty baseline.
	lastSnapshot *amort.Snapshot

	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithExcludedPaths skips the given snapshot paths during diffing.
func WithExcludedPaths(paths ...string) Option {
	return func(m *Manager) {
		m.diff.ExcludedPaths = append(m.diff.ExcludedPaths, paths...)
	}
}

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager wraps an engine with version tracking. The default diff
// configuration routes the schedule to output changes and suppresses
// derived fields from input changes.
func NewManager(engine *amort.Engine, store Store, opts ...Option) *Manager {
	m := &Manager{
		engine: engine,
		store:  store,
		diff: DiffConfig{
			OutputPaths:    append([]string(nil), amort.OutputPaths...),
			GeneratedPaths: append([]string(nil), amort.GeneratedPaths...),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Engine returns the live engine. Mutations through it are picked up by
// the next PreviewChanges or CommitTransaction.
func (m *Manager) Engine() *amort.Engine { return m.engine }

// =============================================================================
// COMMIT / PREVIEW
// =============================================================================

// PreviewChanges diffs the live engine state against the last committed
// version without committing. Side-effect-free on the history: calling it
// any number of times yields the same result as the eventual commit.
func (m *Manager) PreviewChanges() (Changes, error) {
	snap := m.engine.Snapshot()
	return m.diffAgainstLast(snap)
}

// CommitTransaction snapshots the current engine state and appends a new
// version carrying the dual diff against the previous commit.
func (m *Manager) CommitTransaction(ctx context.Context, message string) (Version, error) {
	return m.commit(ctx, message, false, "")
}

func (m *Manager) commit(ctx context.Context, message string, isRollback bool, rolledBackFrom string) (Version, error) {
	snap := m.engine.Snapshot()
	changes, err := m.diffAgainstLast(snap)
	if err != nil {
		return Version{}, err
	}

	v := Version{
		ID:                      uuid.NewString(),
		Number:                  m.counter + 1,
		Timestamp:               m.now(),
		Message:                 message,
		Snapshot:                snap,
		InputChanges:            changes.Input,
		OutputChanges:           changes.Output,
		IsRollback:              isRollback,
		RolledBackFromVersionID: rolledBackFrom,
	}
	if err := m.store.Append(ctx, v); err != nil {
		return Version{}, fmt.Errorf("append version: %w", err)
	}

	m.counter = v.Number
	m.lastSnapshot = &snap
	return v, nil
}

func (m *Manager) diffAgainstLast(snap amort.Snapshot) (Changes, error) {
	var before any
	if m.lastSnapshot != nil {
		before = *m.lastSnapshot
	}
	return Diff(m.diff, before, snap)
}

// =============================================================================
// ROLLBACK
// =============================================================================

// Rollback restores the engine to the state captured by the given version
// and commits the restoration as a new version. The target must exist and
// must not be the current latest version. All-or-nothing: the live engine
// is only replaced once the rollback version has been committed.
func (m *Manager) Rollback(ctx context.Context, versionID, message string) (Version, error) {
	target, err := m.store.Get(ctx, versionID)
	if err != nil {
		return Version{}, err
	}
	if target.Number == m.counter {
		return Version{}, fmt.Errorf("%w: %s", ErrRollbackToCurrent, versionID)
	}

	// Restoration strips derived fields, so EMI and end date regenerate
	// from the restored inputs instead of freezing at their old values.
	restored, err := amort.FromSnapshot(target.Snapshot)
	if err != nil {
		return Version{}, fmt.Errorf("restore snapshot of version %s: %w", versionID, err)
	}

	live := m.engine
	m.engine = restored
	v, err := m.commit(ctx, message, true, versionID)
	if err != nil {
		m.engine = live
		return Version{}, err
	}
	return v, nil
}

// =============================================================================
// HISTORY
// =============================================================================

// DeleteVersion tombstones a version. The version stays in the ordered
// history and keeps its number.
func (m *Manager) DeleteVersion(ctx context.Context, versionID string) error {
	return m.store.MarkDeleted(ctx, versionID)
}

// GetVersionHistory lists committed versions in commit order, filtering
// tombstones unless includeDeleted is set.
func (m *Manager) GetVersionHistory(ctx context.Context, includeDeleted bool) ([]Version, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if includeDeleted {
		return all, nil
	}
	out := make([]Version, 0, len(all))
	for _, v := range all {
		if !v.IsDeleted {
			out = append(out, v)
		}
	}
	return out, nil
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// managerState is the round-trippable wire form of a Manager.
type managerState struct {
	Current  amort.Snapshot `json:"current"`
	Counter  int            `json:"counter"`
	Versions []Version      `json:"versions"`
}

// ToJSON serializes the live engine state and the full version history.
func (m *Manager) ToJSON(ctx context.Context) ([]byte, error) {
	versions, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	state := managerState{
		Current:  m.engine.Snapshot(),
		Counter:  m.counter,
		Versions: versions,
	}
	return json.Marshal(state)
}

// FromJSON rebuilds a Manager from ToJSON output, replaying the history
// into the given store.
func FromJSON(ctx context.Context, data []byte, store Store, opts ...Option) (*Manager, error) {
	var state managerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode manager state: %w", err)
	}
	engine, err := amort.FromSnapshot(state.Current)
	if err != nil {
		return nil, fmt.Errorf("restore current engine: %w", err)
	}

	m := NewManager(engine, store, opts...)
	for _, v := range state.Versions {
		if err := store.Append(ctx, v); err != nil {
			return nil, fmt.Errorf("replay version %s: %w", v.ID, err)
		}
	}
	m.counter = state.Counter
	if len(state.Versions) > 0 {
		last := state.Versions[len(state.Versions)-1]
		m.lastSnapshot = &last.Snapshot
	}
	return m, nil
}
