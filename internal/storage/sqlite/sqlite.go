// Package sqlite provides the SQLite-backed implementation of the
// storage.Local interface: the durable single source of truth for offline
// reads on this device.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mabesi/mysplit/internal/models"
	"github.com/mabesi/mysplit/internal/storage"
)

// Ensure Store implements storage.Local
var _ storage.Local = (*Store)(nil)

const (
	keyUserID   = "uid"
	keyGroupIDs = "myGroups"
)

// Store implements storage.Local using SQLite. Group snapshots are stored
// whole as JSON blobs: the local contract is last-writer-wins replacement
// of the entire group, so a relational decomposition would only invite
// partial writes.
type Store struct {
	db *sql.DB
}

// New creates a Store at the given database path, creating parent
// directories and the schema as needed.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveGroup stores the snapshot, replacing any previous value whole.
func (s *Store) SaveGroup(ctx context.Context, g *models.Group) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode group %s: %w", g.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO groups (id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		g.ID, string(data), g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save group %s: %w", g.ID, err)
	}
	return nil
}

// GetGroup returns the cached snapshot, or (nil, nil) on a miss.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM groups WHERE id = ?", groupID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group %s: %w", groupID, err)
	}
	return decodeGroup(data)
}

// AllGroups returns every cached snapshot keyed by group id.
func (s *Store) AllGroups(ctx context.Context) (map[string]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, data FROM groups")
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := make(map[string]*models.Group)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		g, err := decodeGroup(data)
		if err != nil {
			return nil, err
		}
		groups[id] = g
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	return groups, nil
}

// MarkDirty records that the group has local edits awaiting sync.
func (s *Store) MarkDirty(ctx context.Context, groupID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO dirty (group_id) VALUES (?)", groupID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark group %s dirty: %w", groupID, err)
	}
	return nil
}

// ClearDirty removes the group from the dirty set.
func (s *Store) ClearDirty(ctx context.Context, groupID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM dirty WHERE group_id = ?", groupID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear dirty flag for %s: %w", groupID, err)
	}
	return nil
}

// IsDirty reports whether the group has unsynced local edits.
func (s *Store) IsDirty(ctx context.Context, groupID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM dirty WHERE group_id = ?", groupID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check dirty flag for %s: %w", groupID, err)
	}
	return true, nil
}

// DirtyGroupIDs lists every group awaiting sync, oldest mark first.
func (s *Store) DirtyGroupIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT group_id FROM dirty ORDER BY rowid",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list dirty groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan dirty row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dirty groups: %w", err)
	}
	return ids, nil
}

// EnqueueOp journals a subtractive operation and assigns op.ID.
func (s *Store) EnqueueOp(ctx context.Context, op *storage.PendingOp) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to encode pending op: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO ops (group_id, data) VALUES (?, ?)", op.GroupID, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to journal op for %s: %w", op.GroupID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read op id: %w", err)
	}
	op.ID = id
	return nil
}

// PendingOps lists the group's journaled operations in enqueue order.
func (s *Store) PendingOps(ctx context.Context, groupID string) ([]storage.PendingOp, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, data FROM ops WHERE group_id = ? ORDER BY id", groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending ops for %s: %w", groupID, err)
	}
	defer rows.Close()

	var ops []storage.PendingOp
	for rows.Next() {
		var (
			id   int64
			data string
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan op row: %w", err)
		}
		var op storage.PendingOp
		if err := json.Unmarshal([]byte(data), &op); err != nil {
			return nil, fmt.Errorf("failed to decode pending op: %w", err)
		}
		op.ID = id
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending ops: %w", err)
	}
	return ops, nil
}

// DeleteOp removes one journaled operation.
func (s *Store) DeleteOp(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM ops WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete op %d: %w", id, err)
	}
	return nil
}

// DeleteGroup removes the snapshot, its dirty flag, and its journaled
// operations in one transaction.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM groups WHERE id = ?", groupID); err != nil {
		return fmt.Errorf("failed to delete group %s: %w", groupID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM dirty WHERE group_id = ?", groupID); err != nil {
		return fmt.Errorf("failed to delete dirty flag for %s: %w", groupID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM ops WHERE group_id = ?", groupID); err != nil {
		return fmt.Errorf("failed to delete pending ops for %s: %w", groupID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of %s: %w", groupID, err)
	}
	return nil
}

// UserID returns the persisted opaque user id, or "" if none yet.
func (s *Store) UserID(ctx context.Context) (string, error) {
	return s.deviceValue(ctx, keyUserID)
}

// SetUserID persists the opaque user id.
func (s *Store) SetUserID(ctx context.Context, id string) error {
	return s.setDeviceValue(ctx, keyUserID, id)
}

// GroupIDs returns the ordered joined-group list.
func (s *Store) GroupIDs(ctx context.Context) ([]string, error) {
	raw, err := s.deviceValue(ctx, keyGroupIDs)
	if err != nil || raw == "" {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("failed to decode group id list: %w", err)
	}
	return ids, nil
}

// SetGroupIDs replaces the joined-group list.
func (s *Store) SetGroupIDs(ctx context.Context, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode group id list: %w", err)
	}
	return s.setDeviceValue(ctx, keyGroupIDs, string(data))
}

func (s *Store) deviceValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM device WHERE key = ?", key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read device key %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) setDeviceValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write device key %s: %w", key, err)
	}
	return nil
}

func decodeGroup(data string) (*models.Group, error) {
	var g models.Group
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, fmt.Errorf("failed to decode group: %w", err)
	}
	return &g, nil
}
