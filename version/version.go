package version

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/lending-engine/amort"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrVersionNotFound is returned for an unknown version id.
	ErrVersionNotFound = errors.New("version not found")

	// ErrRollbackToCurrent rejects rolling back to the latest version;
	// there is nothing to undo.
	ErrRollbackToCurrent = errors.New("cannot roll back to the current version")
)

// NotFoundError wraps ErrVersionNotFound with the offending id.
type NotFoundError struct {
	VersionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("version %q not found", e.VersionID)
}

func (e *NotFoundError) Unwrap() error { return ErrVersionNotFound }

// =============================================================================
// VERSION
// =============================================================================

// Version is one committed, immutable point in a loan's audit history.
// Versions are append-only: a deleted version keeps its slot and number,
// it just carries a tombstone flag.
type Version struct {
	ID        string    `json:"versionId"`
	Number    int       `json:"versionNumber"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"commitMessage,omitempty"`

	Snapshot amort.Snapshot `json:"snapshot"`

	InputChanges  ChangeSet `json:"inputChanges"`
	OutputChanges ChangeSet `json:"outputChanges"`

	IsDeleted               bool   `json:"isDeleted"`
	IsRollback              bool   `json:"isRollback"`
	RolledBackFromVersionID string `json:"rolledBackFromVersionId,omitempty"`
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store persists the append-only version history. Implementations must
// never physically remove a version; deletion is the tombstone flag only.
type Store interface {
	// Append adds a committed version to the end of the history.
	Append(ctx context.Context, v Version) error

	// Get returns the version with the given id.
	Get(ctx context.Context, id string) (Version, error)

	// List returns all versions in commit order, tombstones included.
	List(ctx context.Context) ([]Version, error)

	// MarkDeleted sets the tombstone flag on a version.
	MarkDeleted(ctx context.Context, id string) error
}

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory is the in-memory Store used in tests and single-process callers.
type Memory struct {
	mu       sync.RWMutex
	versions []Version
	byID     map[string]int
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]int)}
}

func (m *Memory) Append(_ context.Context, v Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[v.ID]; exists {
		return fmt.Errorf("version %q already committed", v.ID)
	}
	m.byID[v.ID] = len(m.versions)
	m.versions = append(m.versions, v)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return Version{}, &NotFoundError{VersionID: id}
	}
	return m.versions[i], nil
}

func (m *Memory) List(_ context.Context) ([]Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]Version(nil), m.versions...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *Memory) MarkDeleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byID[id]
	if !ok {
		return &NotFoundError{VersionID: id}
	}
	m.versions[i].IsDeleted = true
	return nil
}
