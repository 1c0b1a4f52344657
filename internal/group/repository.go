package group

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists group definitions.
type Repository interface {
	// Get retrieves a group by ID.
	Get(id string) (*Definition, error)

	// GetBySlug retrieves a group by slug.
	GetBySlug(slug string) (*Definition, error)

	// List retrieves all groups ordered by name.
	List() ([]*Definition, error)

	// Create stores a new group and its ordered member references.
	Create(def *Definition) error

	// Update replaces a group's row and member references.
	Update(def *Definition) error

	// Delete removes a group; member rows cascade.
	Delete(id string) error

	// DeleteStatic removes every non-user-defined group. Used by reload
	// to clear config-sourced groups before recreating them.
	DeleteStatic() error
}

// SQLiteRepository implements Repository on SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository using the given database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const groupColumns = `id, name, slug, mode, icon, unique_id, user_defined, created_at, updated_at`

// Get retrieves a group by ID.
func (r *SQLiteRepository) Get(id string) (*Definition, error) {
	row := r.db.QueryRow(`SELECT `+groupColumns+` FROM groups WHERE id = ?`, id)
	return r.scanWithMembers(row)
}

// GetBySlug retrieves a group by slug.
func (r *SQLiteRepository) GetBySlug(slug string) (*Definition, error) {
	row := r.db.QueryRow(`SELECT `+groupColumns+` FROM groups WHERE slug = ?`, slug)
	return r.scanWithMembers(row)
}

// List retrieves all groups ordered by name.
func (r *SQLiteRepository) List() ([]*Definition, error) {
	rows, err := r.db.Query(`SELECT ` + groupColumns + ` FROM groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var defs []*Definition
	for rows.Next() {
		def, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	for _, def := range defs {
		refs, err := r.loadMembers(def.ID)
		if err != nil {
			return nil, err
		}
		def.MemberRefs = refs
	}
	return defs, nil
}

// Create stores a new group and its ordered member references.
func (r *SQLiteRepository) Create(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	def.CreatedAt = now
	def.UpdatedAt = now

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO groups (id, name, slug, mode, icon, unique_id, user_defined, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID, def.Name, def.Slug, string(def.Mode), def.Icon, def.UniqueID,
		boolToInt(def.UserDefined), now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: slug %q", ErrGroupExists, def.Slug)
		}
		return fmt.Errorf("failed to insert group: %w", err)
	}

	if err := insertMembers(tx, def.ID, def.MemberRefs); err != nil {
		return err
	}
	return tx.Commit()
}

// Update replaces a group's row and member references.
func (r *SQLiteRepository) Update(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	def.UpdatedAt = now

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE groups
		SET name = ?, slug = ?, mode = ?, icon = ?, unique_id = ?, updated_at = ?
		WHERE id = ?`,
		def.Name, def.Slug, string(def.Mode), def.Icon, def.UniqueID,
		now.Format(time.RFC3339), def.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: slug %q", ErrGroupExists, def.Slug)
		}
		return fmt.Errorf("failed to update group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, def.ID)
	}

	if _, err := tx.Exec(`DELETE FROM group_members WHERE group_id = ?`, def.ID); err != nil {
		return fmt.Errorf("failed to clear group members: %w", err)
	}
	if err := insertMembers(tx, def.ID, def.MemberRefs); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a group; member rows cascade.
func (r *SQLiteRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, id)
	}
	return nil
}

// DeleteStatic removes every non-user-defined group.
func (r *SQLiteRepository) DeleteStatic() error {
	if _, err := r.db.Exec(`DELETE FROM groups WHERE user_defined = 0`); err != nil {
		return fmt.Errorf("failed to delete static groups: %w", err)
	}
	return nil
}

// scanWithMembers scans a single group row and attaches its members.
func (r *SQLiteRepository) scanWithMembers(row *sql.Row) (*Definition, error) {
	def, err := scanGroup(row)
	if err != nil {
		return nil, err
	}
	refs, err := r.loadMembers(def.ID)
	if err != nil {
		return nil, err
	}
	def.MemberRefs = refs
	return def, nil
}

// loadMembers retrieves a group's member refs in declaration order.
func (r *SQLiteRepository) loadMembers(groupID string) ([]MemberRef, error) {
	rows, err := r.db.Query(`
		SELECT ref, ref_type FROM group_members
		WHERE group_id = ? ORDER BY position`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group members: %w", err)
	}
	defer rows.Close()

	var refs []MemberRef
	for rows.Next() {
		var ref MemberRef
		var refType string
		if err := rows.Scan(&ref.Ref, &refType); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		ref.Type = RefType(refType)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group members: %w", err)
	}
	return refs, nil
}

// insertMembers stores ordered member refs within a transaction.
func insertMembers(tx *sql.Tx, groupID string, refs []MemberRef) error {
	for i, ref := range refs {
		_, err := tx.Exec(`
			INSERT INTO group_members (group_id, position, ref, ref_type)
			VALUES (?, ?, ?, ?)`,
			groupID, i, ref.Ref, string(ref.Type),
		)
		if err != nil {
			return fmt.Errorf("failed to insert group member: %w", err)
		}
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

// scanGroup scans one group row without its members.
func scanGroup(s scanner) (*Definition, error) {
	var def Definition
	var mode string
	var userDefined int
	var createdAt, updatedAt string

	err := s.Scan(&def.ID, &def.Name, &def.Slug, &mode, &def.Icon,
		&def.UniqueID, &userDefined, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to scan group: %w", err)
	}

	def.Mode = Mode(mode)
	def.UserDefined = userDefined != 0
	def.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	def.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &def, nil
}

// isUniqueViolation detects SQLite unique constraint errors.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
