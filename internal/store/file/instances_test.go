package file

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/casahub/leadlink/internal/store"
)

func tempStore(t *testing.T) (*InstanceStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instances.json")
	return NewInstanceStore(path), path
}

func newInst(owner, name string, status store.InstanceStatus) *store.ChannelInstance {
	return &store.ChannelInstance{
		ID:           store.GenNewID(),
		OwnerID:      owner,
		InstanceName: name,
		PairingToken: "tok",
		Status:       status,
		PairingCode:  "data:image/png;base64,QUJD",
	}
}

func TestInsertAndFindActive(t *testing.T) {
	s, _ := tempStore(t)

	inst := newInst("owner-1", "owner-1-a", store.StatusPending)
	if err := s.Insert(inst); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.FindActive("owner-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.InstanceName != "owner-1-a" || got.Status != store.StatusPending {
		t.Errorf("got %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps should be set on insert")
	}

	if _, err := s.FindActive("other-owner"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown owner, got %v", err)
	}
}

func TestFindActive_NewestWins(t *testing.T) {
	s, _ := tempStore(t)

	old := newInst("owner-1", "owner-1-old", store.StatusPending)
	old.CreatedAt = time.Now().Add(-time.Hour)
	if err := s.Insert(old); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(newInst("owner-1", "owner-1-new", store.StatusPending)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.FindActive("owner-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.InstanceName != "owner-1-new" {
		t.Errorf("expected newest row, got %s", got.InstanceName)
	}
}

func TestFindActive_ExcludesDeleted(t *testing.T) {
	s, _ := tempStore(t)

	inst := newInst("owner-1", "owner-1-a", store.StatusPending)
	if err := s.Insert(inst); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.SoftDelete(inst.ID.String(), store.StatusExpired); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	if _, err := s.FindActive("owner-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("soft-deleted row must not be found, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	s, _ := tempStore(t)

	inst := newInst("owner-1", "owner-1-a", store.StatusPending)
	if err := s.Insert(inst); err != nil {
		t.Fatalf("insert: %v", err)
	}

	status := store.StatusAuthorized
	code := ""
	n, err := s.Update("owner-1", "owner-1-a", store.InstanceFields{Status: &status, PairingCode: &code})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 1 {
		t.Fatalf("matched %d rows, want 1", n)
	}

	got, _ := s.FindActive("owner-1")
	if got.Status != store.StatusAuthorized || got.PairingCode != "" {
		t.Errorf("got status=%s code=%q", got.Status, got.PairingCode)
	}
}

func TestUpdate_NoMatch(t *testing.T) {
	s, _ := tempStore(t)

	status := store.StatusAuthorized
	n, err := s.Update("owner-1", "nope", store.InstanceFields{Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 0 {
		t.Errorf("matched %d rows, want 0", n)
	}
}

func TestUpsert(t *testing.T) {
	s, _ := tempStore(t)

	inst := newInst("owner-1", "owner-1-a", store.StatusPending)
	if err := s.Upsert(inst); err != nil {
		t.Fatalf("upsert insert: %v", err)
	}

	inst.Status = store.StatusAuthorized
	inst.PairingCode = ""
	if err := s.Upsert(inst); err != nil {
		t.Fatalf("upsert update: %v", err)
	}

	got, err := s.FindActive("owner-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != store.StatusAuthorized {
		t.Errorf("status = %s", got.Status)
	}
}

func TestSoftDelete(t *testing.T) {
	s, _ := tempStore(t)

	inst := newInst("owner-1", "owner-1-a", store.StatusPending)
	if err := s.Insert(inst); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.SoftDelete(inst.ID.String(), store.StatusDisconnected); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	// Second delete of the same row is a not-found.
	if err := s.SoftDelete(inst.ID.String(), store.StatusDisconnected); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHardDelete(t *testing.T) {
	s, _ := tempStore(t)

	inst := newInst("owner-1", "owner-1-a", store.StatusPending)
	if err := s.Insert(inst); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.HardDelete(inst.ID.String()); err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	if err := s.HardDelete(inst.ID.String()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReopenPersists(t *testing.T) {
	s, path := tempStore(t)

	inst := newInst("owner-1", "owner-1-a", store.StatusAuthorized)
	inst.PairingCode = ""
	if err := s.Insert(inst); err != nil {
		t.Fatalf("insert: %v", err)
	}

	reopened := NewInstanceStore(path)
	got, err := reopened.FindActive("owner-1")
	if err != nil {
		t.Fatalf("find after reopen: %v", err)
	}
	if got.InstanceName != "owner-1-a" || got.Status != store.StatusAuthorized {
		t.Errorf("got %+v", got)
	}
	if got.ID != inst.ID {
		t.Error("id should survive a reload")
	}
}
