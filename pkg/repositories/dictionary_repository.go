package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/database"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
)

// DictionaryRepository provides data access for versioned dictionary entries.
// All writes to one column key are serialized.
type DictionaryRepository interface {
	// Upsert lands one machine-generated entry according to
	// models.PlanDictionaryUpsert and returns the row written.
	Upsert(ctx context.Context, databaseName string, in models.DictionaryEntryInput) (*models.DictionaryEntry, models.UpsertAction, error)

	// Activate makes id the only active version of its key. Idempotent.
	Activate(ctx context.Context, id uuid.UUID) (*models.DictionaryEntry, error)

	// Update applies operator edits. With createNewVersion the merged row is
	// inserted as a new active version; otherwise id is edited in place.
	Update(ctx context.Context, id uuid.UUID, upd models.DictionaryEntryUpdate, createNewVersion bool) (*models.DictionaryEntry, error)

	Get(ctx context.Context, id uuid.UUID) (*models.DictionaryEntry, error)
	List(ctx context.Context, filter models.DictionaryFilter) ([]*models.DictionaryEntry, error)
	GetVersions(ctx context.Context, key models.ColumnKey) ([]*models.DictionaryEntry, error)
}

type dictionaryRepository struct {
	db *database.DB
}

// NewDictionaryRepository creates a new DictionaryRepository backed by PostgreSQL.
func NewDictionaryRepository(db *database.DB) DictionaryRepository {
	return &dictionaryRepository{db: db}
}

var _ DictionaryRepository = (*dictionaryRepository)(nil)

const dictionaryColumns = `id, database_name, schema_name, table_name, column_name, version_number,
	is_active, version_notes, business_name, business_description, technical_description,
	data_type, examples, tags, source, created_at, updated_at`

const dictionaryKeyPredicate = `database_name = $1 AND schema_name = $2 AND table_name = $3 AND column_name = $4`

func (r *dictionaryRepository) Upsert(ctx context.Context, databaseName string, in models.DictionaryEntryInput) (*models.DictionaryEntry, models.UpsertAction, error) {
	key := models.ColumnKey{Database: databaseName, Schema: in.SchemaName, Table: in.TableName, Column: in.ColumnName}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if err := lockColumnKey(ctx, tx, key); err != nil {
		return nil, "", err
	}

	versions, err := loadVersionsForUpdate(ctx, tx, key)
	if err != nil {
		return nil, "", err
	}

	plan := models.PlanDictionaryUpsert(versions)
	now := time.Now().UTC()

	var entry models.DictionaryEntry
	switch plan.Action {
	case models.UpsertUpdateInPlace:
		entry = *plan.Target
		in.ApplyTo(&entry)
		entry.Source = models.EntrySourceLLMInitial
		entry.UpdatedAt = now
		if err := updateEntryRow(ctx, tx, &entry); err != nil {
			return nil, "", err
		}
	default:
		entry = models.DictionaryEntry{
			ID:            uuid.New(),
			DatabaseName:  key.Database,
			SchemaName:    key.Schema,
			TableName:     key.Table,
			ColumnName:    key.Column,
			VersionNumber: plan.VersionNumber,
			IsActive:      plan.Action == models.UpsertInsertActive,
			Source:        models.EntrySourceLLMInitial,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		in.ApplyTo(&entry)
		if err := insertEntryRow(ctx, tx, &entry); err != nil {
			return nil, "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &entry, plan.Action, nil
}

func (r *dictionaryRepository) Activate(ctx context.Context, id uuid.UUID) (*models.DictionaryEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	target, err := lockEntry(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if !target.IsActive {
		if err := deactivateKey(ctx, tx, target.Key()); err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		if _, err := tx.Exec(ctx,
			`UPDATE dictionary_entries SET is_active = TRUE, updated_at = $2 WHERE id = $1`, id, now); err != nil {
			if isUniqueViolation(err) {
				return nil, apperrors.ErrVersionConflict
			}
			return nil, fmt.Errorf("failed to activate entry: %w", err)
		}
		target.IsActive = true
		target.UpdatedAt = now
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return target, nil
}

func (r *dictionaryRepository) Update(ctx context.Context, id uuid.UUID, upd models.DictionaryEntryUpdate, createNewVersion bool) (*models.DictionaryEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	target, err := lockEntry(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := *target
	upd.ApplyTo(&entry)
	entry.UpdatedAt = now

	if createNewVersion {
		versions, err := loadVersionsForUpdate(ctx, tx, target.Key())
		if err != nil {
			return nil, err
		}
		if err := deactivateKey(ctx, tx, target.Key()); err != nil {
			return nil, err
		}
		entry.ID = uuid.New()
		entry.VersionNumber = models.MaxVersion(versions) + 1
		entry.IsActive = true
		entry.CreatedAt = now
		if upd.VersionNotes == nil {
			entry.VersionNotes = ""
		}
		if err := insertEntryRow(ctx, tx, &entry); err != nil {
			return nil, err
		}
	} else if err := updateEntryRow(ctx, tx, &entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &entry, nil
}

func (r *dictionaryRepository) Get(ctx context.Context, id uuid.UUID) (*models.DictionaryEntry, error) {
	query := `SELECT ` + dictionaryColumns + ` FROM dictionary_entries WHERE id = $1`

	entry, err := scanDictionaryEntry(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dictionary entry: %w", err)
	}
	return entry, nil
}

func (r *dictionaryRepository) List(ctx context.Context, filter models.DictionaryFilter) ([]*models.DictionaryEntry, error) {
	query := `SELECT ` + dictionaryColumns + ` FROM dictionary_entries
		WHERE ($1 = '' OR database_name = $1)
		  AND ($2 = '' OR schema_name = $2)
		  AND ($3 = '' OR table_name = $3)
		  AND (NOT $4 OR is_active)
		ORDER BY database_name, schema_name, table_name, column_name, version_number`

	rows, err := r.db.Query(ctx, query, filter.DatabaseName, filter.SchemaName, filter.TableName, filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list dictionary entries: %w", err)
	}
	defer rows.Close()

	return collectDictionaryEntries(rows)
}

func (r *dictionaryRepository) GetVersions(ctx context.Context, key models.ColumnKey) ([]*models.DictionaryEntry, error) {
	query := `SELECT ` + dictionaryColumns + ` FROM dictionary_entries
		WHERE ` + dictionaryKeyPredicate + `
		ORDER BY version_number`

	rows, err := r.db.Query(ctx, query, key.Database, key.Schema, key.Table, key.Column)
	if err != nil {
		return nil, fmt.Errorf("failed to list dictionary versions: %w", err)
	}
	defer rows.Close()

	return collectDictionaryEntries(rows)
}

// lockColumnKey takes a transaction-scoped advisory lock on the key so that
// concurrent writers of the same column queue behind each other, including
// when no row exists yet to lock.
func lockColumnKey(ctx context.Context, tx pgx.Tx, key models.ColumnKey) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return fmt.Errorf("failed to lock dictionary key: %w", err)
	}
	return nil
}

// lockEntry resolves id to its key, locks the key, then re-reads the row.
func lockEntry(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.DictionaryEntry, error) {
	query := `SELECT ` + dictionaryColumns + ` FROM dictionary_entries WHERE id = $1`

	entry, err := scanDictionaryEntry(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dictionary entry: %w", err)
	}

	if err := lockColumnKey(ctx, tx, entry.Key()); err != nil {
		return nil, err
	}

	entry, err = scanDictionaryEntry(tx.QueryRow(ctx, query+` FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock dictionary entry: %w", err)
	}
	return entry, nil
}

func loadVersionsForUpdate(ctx context.Context, tx pgx.Tx, key models.ColumnKey) ([]models.DictionaryEntry, error) {
	query := `SELECT ` + dictionaryColumns + ` FROM dictionary_entries
		WHERE ` + dictionaryKeyPredicate + `
		ORDER BY version_number
		FOR UPDATE`

	rows, err := tx.Query(ctx, query, key.Database, key.Schema, key.Table, key.Column)
	if err != nil {
		return nil, fmt.Errorf("failed to load dictionary versions: %w", err)
	}
	defer rows.Close()

	var versions []models.DictionaryEntry
	for rows.Next() {
		entry, err := scanDictionaryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dictionary entry: %w", err)
		}
		versions = append(versions, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dictionary versions: %w", err)
	}
	return versions, nil
}

func deactivateKey(ctx context.Context, tx pgx.Tx, key models.ColumnKey) error {
	_, err := tx.Exec(ctx, `
		UPDATE dictionary_entries SET is_active = FALSE, updated_at = NOW()
		WHERE `+dictionaryKeyPredicate+` AND is_active`,
		key.Database, key.Schema, key.Table, key.Column)
	if err != nil {
		return fmt.Errorf("failed to deactivate dictionary versions: %w", err)
	}
	return nil
}

func insertEntryRow(ctx context.Context, tx pgx.Tx, e *models.DictionaryEntry) error {
	ensureEntryCollections(e)

	query := `
		INSERT INTO dictionary_entries (
			id, database_name, schema_name, table_name, column_name, version_number,
			is_active, version_notes, business_name, business_description, technical_description,
			data_type, examples, tags, source, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.DatabaseName, e.SchemaName, e.TableName, e.ColumnName, e.VersionNumber,
		e.IsActive, e.VersionNotes, e.BusinessName, e.BusinessDescription, e.TechnicalDescription,
		e.DataType, e.Examples, e.Tags, e.Source, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrVersionConflict
		}
		return fmt.Errorf("failed to insert dictionary entry: %w", err)
	}
	return nil
}

func updateEntryRow(ctx context.Context, tx pgx.Tx, e *models.DictionaryEntry) error {
	ensureEntryCollections(e)

	query := `
		UPDATE dictionary_entries
		SET version_notes = $2, business_name = $3, business_description = $4,
		    technical_description = $5, data_type = $6, examples = $7, tags = $8,
		    source = $9, updated_at = $10
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query,
		e.ID, e.VersionNotes, e.BusinessName, e.BusinessDescription,
		e.TechnicalDescription, e.DataType, e.Examples, e.Tags, e.Source, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrVersionConflict
		}
		return fmt.Errorf("failed to update dictionary entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func ensureEntryCollections(e *models.DictionaryEntry) {
	if e.Examples == nil {
		e.Examples = []string{}
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
}

func collectDictionaryEntries(rows pgx.Rows) ([]*models.DictionaryEntry, error) {
	var entries []*models.DictionaryEntry
	for rows.Next() {
		entry, err := scanDictionaryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dictionary entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dictionary entries: %w", err)
	}
	return entries, nil
}

func scanDictionaryEntry(row pgx.Row) (*models.DictionaryEntry, error) {
	var e models.DictionaryEntry
	err := row.Scan(
		&e.ID, &e.DatabaseName, &e.SchemaName, &e.TableName, &e.ColumnName, &e.VersionNumber,
		&e.IsActive, &e.VersionNotes, &e.BusinessName, &e.BusinessDescription, &e.TechnicalDescription,
		&e.DataType, &e.Examples, &e.Tags, &e.Source, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ensureEntryCollections(&e)
	return &e, nil
}
