package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for mapping persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByUniqueID retrieves a mapping by its unique ID.
	// Returns ErrMappingNotFound if no mapping exists.
	GetByUniqueID(ctx context.Context, uniqueID string) (*Mapping, error)

	// List retrieves all mappings ordered by entity ID.
	List(ctx context.Context) ([]Mapping, error)

	// Upsert inserts or replaces a mapping keyed by unique ID.
	Upsert(ctx context.Context, mapping *Mapping) error

	// Delete removes a mapping by unique ID.
	// Returns ErrMappingNotFound if no mapping exists.
	Delete(ctx context.Context, uniqueID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByUniqueID retrieves a mapping by its unique ID.
func (r *SQLiteRepository) GetByUniqueID(ctx context.Context, uniqueID string) (*Mapping, error) {
	query := `
		SELECT unique_id, entity_id, name, created_at, updated_at
		FROM entity_registry
		WHERE unique_id = ?`

	row := r.db.QueryRowContext(ctx, query, uniqueID)
	mapping, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, fmt.Errorf("querying mapping by unique_id: %w", err)
	}
	return mapping, nil
}

// List retrieves all mappings ordered by entity ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Mapping, error) {
	query := `
		SELECT unique_id, entity_id, name, created_at, updated_at
		FROM entity_registry
		ORDER BY entity_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying mappings: %w", err)
	}
	defer rows.Close()

	var mappings []Mapping
	for rows.Next() {
		mapping, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mapping row: %w", err)
		}
		mappings = append(mappings, *mapping)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mapping rows: %w", err)
	}

	return mappings, nil
}

// Upsert inserts or replaces a mapping keyed by unique ID.
// Returns ErrEntityIDTaken if the entity ID belongs to another unique ID.
func (r *SQLiteRepository) Upsert(ctx context.Context, mapping *Mapping) error {
	if err := mapping.Validate(); err != nil {
		return err
	}

	// Reject entity IDs already claimed by a different unique ID.
	var existing string
	err := r.db.QueryRowContext(ctx,
		"SELECT unique_id FROM entity_registry WHERE entity_id = ?",
		mapping.EntityID,
	).Scan(&existing)
	switch {
	case err == nil && existing != mapping.UniqueID:
		return fmt.Errorf("%w: %s is mapped to %s", ErrEntityIDTaken, mapping.EntityID, existing)
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("checking entity_id uniqueness: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO entity_registry (unique_id, entity_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(unique_id) DO UPDATE SET
			entity_id = excluded.entity_id,
			name = excluded.name,
			updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query,
		mapping.UniqueID, mapping.EntityID, mapping.Name, now, now,
	); err != nil {
		return fmt.Errorf("upserting mapping: %w", err)
	}

	return nil
}

// Delete removes a mapping by unique ID.
func (r *SQLiteRepository) Delete(ctx context.Context, uniqueID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM entity_registry WHERE unique_id = ?", uniqueID)
	if err != nil {
		return fmt.Errorf("deleting mapping: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrMappingNotFound
	}

	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanMapping.
type scanner interface {
	Scan(dest ...any) error
}

// scanMapping reads a mapping from a database row.
func scanMapping(row scanner) (*Mapping, error) {
	var m Mapping
	var createdAt, updatedAt string

	if err := row.Scan(&m.UniqueID, &m.EntityID, &m.Name, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	// Timestamps are written by us in RFC3339; parse errors leave zero values.
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled

	return &m, nil
}
