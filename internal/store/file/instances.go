// Package file implements store interfaces backed by JSON files on disk
// (standalone mode, no external database).
package file

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/casahub/leadlink/internal/store"
)

// InstanceStore implements store.InstanceStore backed by a single JSON file.
// All rows (including soft-deleted ones) are kept in the file; FindActive
// filters them out.
type InstanceStore struct {
	path string
	mu   sync.Mutex
	rows []store.ChannelInstance
}

// NewInstanceStore creates a file-backed instance store.
// path is the JSON file for persistence (e.g. ~/.leadlink/data/instances.json).
func NewInstanceStore(path string) *InstanceStore {
	s := &InstanceStore{path: path}
	s.load()
	return s
}

func (s *InstanceStore) FindActive(ownerID string) (*store.ChannelInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newest *store.ChannelInstance
	for i := range s.rows {
		row := &s.rows[i]
		if row.OwnerID != ownerID || !row.Active() {
			continue
		}
		if newest == nil || row.CreatedAt.After(newest.CreatedAt) {
			newest = row
		}
	}
	if newest == nil {
		return nil, store.ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (s *InstanceStore) Insert(inst *store.ChannelInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now

	s.rows = append(s.rows, *inst)
	return s.save()
}

func (s *InstanceStore) Update(ownerID, instanceName string, fields store.InstanceFields) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched int64
	for i := range s.rows {
		row := &s.rows[i]
		if row.OwnerID != ownerID || row.InstanceName != instanceName || !row.Active() {
			continue
		}
		applyFields(row, fields)
		matched++
	}
	if matched == 0 {
		return 0, nil
	}
	return matched, s.save()
}

func (s *InstanceStore) Upsert(inst *store.ChannelInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i := range s.rows {
		row := &s.rows[i]
		if row.OwnerID == inst.OwnerID && row.InstanceName == inst.InstanceName {
			status := inst.Status
			code := inst.PairingCode
			applyFields(row, store.InstanceFields{Status: &status, PairingCode: &code})
			return s.save()
		}
	}

	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now
	s.rows = append(s.rows, *inst)
	return s.save()
}

func (s *InstanceStore) SoftDelete(id string, status store.InstanceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rows {
		row := &s.rows[i]
		if row.ID.String() != id || !row.Active() {
			continue
		}
		now := time.Now()
		row.DeletedAt = &now
		row.Status = status
		row.PairingCode = ""
		row.UpdatedAt = now
		return s.save()
	}
	return store.ErrNotFound
}

func (s *InstanceStore) HardDelete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rows {
		if s.rows[i].ID.String() == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return s.save()
		}
	}
	return store.ErrNotFound
}

// applyFields mutates row in place and bumps UpdatedAt.
func applyFields(row *store.ChannelInstance, fields store.InstanceFields) {
	if fields.Status != nil {
		row.Status = *fields.Status
	}
	if fields.PairingCode != nil {
		row.PairingCode = *fields.PairingCode
	}
	row.UpdatedAt = time.Now()
}

// --- Persistence ---

func (s *InstanceStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return // file doesn't exist yet
	}
	if err := json.Unmarshal(data, &s.rows); err != nil {
		slog.Error("instance store: corrupt file ignored", "path", s.path, "error", err)
		return
	}
	// Stable order: oldest first
	sort.Slice(s.rows, func(i, j int) bool {
		return s.rows[i].CreatedAt.Before(s.rows[j].CreatedAt)
	})
}

func (s *InstanceStore) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	data, err := json.MarshalIndent(s.rows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal instances: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write instances: %w", err)
	}
	return nil
}
