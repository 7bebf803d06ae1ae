package pg

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/casahub/leadlink/internal/store"
)

// PGInstanceStore implements store.InstanceStore backed by Postgres.
type PGInstanceStore struct {
	db *sql.DB
}

func NewPGInstanceStore(db *sql.DB) *PGInstanceStore {
	return &PGInstanceStore{db: db}
}

// EnsureSchema creates the channel_instances table if missing.
func (s *PGInstanceStore) EnsureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS channel_instances (
			id UUID PRIMARY KEY,
			owner_id VARCHAR(255) NOT NULL,
			instance_name VARCHAR(100) NOT NULL,
			pairing_token TEXT NOT NULL,
			remote_instance_id TEXT,
			status VARCHAR(20) NOT NULL,
			pairing_code TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			deleted_at TIMESTAMPTZ,
			UNIQUE (owner_id, instance_name)
		)`,
		// At most one active row per owner, enforced by the database as
		// well as the orchestrator.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_channel_instances_owner_active
		 ON channel_instances(owner_id) WHERE deleted_at IS NULL`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const instanceColumns = `id, owner_id, instance_name, pairing_token,
	COALESCE(remote_instance_id, ''), status, COALESCE(pairing_code, ''),
	created_at, updated_at, deleted_at`

func (s *PGInstanceStore) FindActive(ownerID string) (*store.ChannelInstance, error) {
	row := s.db.QueryRow(
		`SELECT `+instanceColumns+`
		 FROM channel_instances
		 WHERE owner_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at DESC
		 LIMIT 1`, ownerID)

	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active instance: %w", err)
	}
	return inst, nil
}

func (s *PGInstanceStore) Insert(inst *store.ChannelInstance) error {
	now := time.Now()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now

	_, err := s.db.Exec(
		`INSERT INTO channel_instances
		   (id, owner_id, instance_name, pairing_token, remote_instance_id,
		    status, pairing_code, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9)`,
		inst.ID, inst.OwnerID, inst.InstanceName, inst.PairingToken,
		inst.RemoteInstanceID, inst.Status, inst.PairingCode,
		inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	return nil
}

func (s *PGInstanceStore) Update(ownerID, instanceName string, fields store.InstanceFields) (int64, error) {
	sets := []string{"updated_at = $3"}
	args := []any{ownerID, instanceName, time.Now()}

	if fields.Status != nil {
		args = append(args, *fields.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if fields.PairingCode != nil {
		args = append(args, *fields.PairingCode)
		sets = append(sets, fmt.Sprintf("pairing_code = NULLIF($%d, '')", len(args)))
	}

	result, err := s.db.Exec(
		`UPDATE channel_instances SET `+strings.Join(sets, ", ")+`
		 WHERE owner_id = $1 AND instance_name = $2 AND deleted_at IS NULL`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("update instance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update instance rows: %w", err)
	}
	return n, nil
}

func (s *PGInstanceStore) Upsert(inst *store.ChannelInstance) error {
	now := time.Now()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	_, err := s.db.Exec(
		`INSERT INTO channel_instances
		   (id, owner_id, instance_name, pairing_token, remote_instance_id,
		    status, pairing_code, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9)
		 ON CONFLICT (owner_id, instance_name) DO UPDATE SET
		   status = EXCLUDED.status,
		   pairing_code = EXCLUDED.pairing_code,
		   updated_at = EXCLUDED.updated_at,
		   deleted_at = NULL`,
		inst.ID, inst.OwnerID, inst.InstanceName, inst.PairingToken,
		inst.RemoteInstanceID, inst.Status, inst.PairingCode,
		inst.CreatedAt, now,
	)
	if err != nil {
		return fmt.Errorf("upsert instance: %w", err)
	}
	return nil
}

func (s *PGInstanceStore) SoftDelete(id string, status store.InstanceStatus) error {
	result, err := s.db.Exec(
		`UPDATE channel_instances
		 SET deleted_at = $2, status = $3, pairing_code = NULL, updated_at = $2
		 WHERE id = $1 AND deleted_at IS NULL`,
		id, time.Now(), status,
	)
	if err != nil {
		return fmt.Errorf("soft delete instance: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGInstanceStore) HardDelete(id string) error {
	result, err := s.db.Exec(`DELETE FROM channel_instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("hard delete instance: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*store.ChannelInstance, error) {
	var inst store.ChannelInstance
	var id string
	var deletedAt sql.NullTime
	err := row.Scan(&id, &inst.OwnerID, &inst.InstanceName, &inst.PairingToken,
		&inst.RemoteInstanceID, &inst.Status, &inst.PairingCode,
		&inst.CreatedAt, &inst.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	inst.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse instance id: %w", err)
	}
	if deletedAt.Valid {
		inst.DeletedAt = &deletedAt.Time
	}
	return &inst, nil
}
