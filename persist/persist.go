// Package persist is the only bridge between the editor and durable state.
//
// The ChangeSet is stored as one JSON record under ChangesKey in an
// origin-scoped KV. The edit-mode flag lives under ModeKey in a separate KV
// so the two concerns persist independently. Writes overwrite: last writer
// wins, there is no versioning and no isolation between concurrent tabs.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/restyle/changes"
	"github.com/hazyhaar/restyle/dom"
)

const (
	// ChangesKey holds the serialised ChangeSet.
	ChangesKey = "styleChanges"
	// ModeKey holds the edit-mode flag.
	ModeKey = "editMode"
)

// ErrStorageUnavailable wraps any failure to read or write durable state.
// Callers treat it as "no prior state" and keep working in memory.
var ErrStorageUnavailable = errors.New("persist: storage unavailable")

// KV is a durable string-keyed store, already scoped to one origin.
type KV interface {
	// Get returns found=false when key was never written.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Put(ctx context.Context, key string, value []byte) error
}

// Layer saves, loads and replays ChangeSets.
type Layer struct {
	kv     KV
	logger *slog.Logger
}

// New creates a Layer over kv.
func New(kv KV, logger *slog.Logger) *Layer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Layer{kv: kv, logger: logger}
}

// Save serialises cs and overwrites the durable record.
func (l *Layer) Save(ctx context.Context, cs changes.ChangeSet) error {
	if cs == nil {
		cs = changes.ChangeSet{}
	}
	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("persist: marshal: %w", err)
	}
	if err := l.kv.Put(ctx, ChangesKey, data); err != nil {
		return fmt.Errorf("%w: save: %v", ErrStorageUnavailable, err)
	}
	l.logger.Debug("persist: saved", "keys", len(cs), "bytes", len(data))
	return nil
}

// Load reads the durable record. found is false when nothing was ever
// saved, which is distinct from a saved empty set.
func (l *Layer) Load(ctx context.Context) (cs changes.ChangeSet, found bool, err error) {
	data, found, err := l.kv.Get(ctx, ChangesKey)
	if err != nil {
		return nil, false, fmt.Errorf("%w: load: %v", ErrStorageUnavailable, err)
	}
	if !found {
		return nil, false, nil
	}
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, false, fmt.Errorf("%w: decode: %v", ErrStorageUnavailable, err)
	}
	if cs == nil {
		cs = changes.ChangeSet{}
	}
	return cs, true, nil
}

// ReplayIntoDocument loads the durable record and applies it to doc.
// Replaying twice leaves the document as replaying once.
func (l *Layer) ReplayIntoDocument(ctx context.Context, doc dom.Document) (changes.Report, error) {
	cs, found, err := l.Load(ctx)
	if err != nil {
		return changes.Report{}, err
	}
	if !found {
		l.logger.Debug("persist: nothing to replay")
		return changes.Report{}, nil
	}
	rep := changes.ApplyAll(ctx, cs, doc, l.logger)
	l.logger.Info("persist: replayed",
		"keys", rep.Keys, "elements", rep.Elements, "applied", rep.Applied, "skipped", len(rep.Skipped))
	return rep, nil
}

// ModeStore persists the edit-mode flag.
type ModeStore struct {
	kv KV
}

// NewModeStore creates a ModeStore over kv.
func NewModeStore(kv KV) *ModeStore {
	return &ModeStore{kv: kv}
}

// Enabled returns the stored flag; found is false when none was stored.
func (m *ModeStore) Enabled(ctx context.Context) (enabled, found bool, err error) {
	data, found, err := m.kv.Get(ctx, ModeKey)
	if err != nil {
		return false, false, fmt.Errorf("%w: mode: %v", ErrStorageUnavailable, err)
	}
	if !found {
		return false, false, nil
	}
	if err := json.Unmarshal(data, &enabled); err != nil {
		return false, false, fmt.Errorf("%w: mode decode: %v", ErrStorageUnavailable, err)
	}
	return enabled, true, nil
}

// SetEnabled stores the flag.
func (m *ModeStore) SetEnabled(ctx context.Context, enabled bool) error {
	data, _ := json.Marshal(enabled)
	if err := m.kv.Put(ctx, ModeKey, data); err != nil {
		return fmt.Errorf("%w: mode: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Memory is a process-local KV. It backs tests and the in-memory fallback.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemory returns an empty Memory KV.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}
