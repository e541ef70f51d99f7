package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/repositories"
)

// DictionaryRepository keeps dictionary versions in process. A single store
// mutex linearizes every write, which also serializes writes per key.
type DictionaryRepository struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*models.DictionaryEntry
}

func NewDictionaryRepository() *DictionaryRepository {
	return &DictionaryRepository{entries: make(map[uuid.UUID]*models.DictionaryEntry)}
}

var _ repositories.DictionaryRepository = (*DictionaryRepository)(nil)

func (r *DictionaryRepository) Upsert(_ context.Context, databaseName string, in models.DictionaryEntryInput) (*models.DictionaryEntry, models.UpsertAction, error) {
	key := models.ColumnKey{Database: databaseName, Schema: in.SchemaName, Table: in.TableName, Column: in.ColumnName}

	r.mu.Lock()
	defer r.mu.Unlock()

	plan := models.PlanDictionaryUpsert(r.versionsLocked(key))
	now := time.Now().UTC()

	if plan.Action == models.UpsertUpdateInPlace {
		stored := r.entries[plan.Target.ID]
		in.ApplyTo(stored)
		stored.Source = models.EntrySourceLLMInitial
		stored.UpdatedAt = now
		return cloneEntry(stored), plan.Action, nil
	}

	entry := &models.DictionaryEntry{
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
	in.ApplyTo(entry)
	r.entries[entry.ID] = entry
	return cloneEntry(entry), plan.Action, nil
}

func (r *DictionaryRepository) Activate(_ context.Context, id uuid.UUID) (*models.DictionaryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.entries[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if !target.IsActive {
		now := time.Now().UTC()
		r.deactivateLocked(target.Key(), now)
		target.IsActive = true
		target.UpdatedAt = now
	}
	return cloneEntry(target), nil
}

func (r *DictionaryRepository) Update(_ context.Context, id uuid.UUID, upd models.DictionaryEntryUpdate, createNewVersion bool) (*models.DictionaryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.entries[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	now := time.Now().UTC()

	if !createNewVersion {
		upd.ApplyTo(target)
		target.UpdatedAt = now
		return cloneEntry(target), nil
	}

	entry := cloneEntry(target)
	upd.ApplyTo(entry)
	if upd.VersionNotes == nil {
		entry.VersionNotes = ""
	}
	entry.ID = uuid.New()
	entry.VersionNumber = models.MaxVersion(r.versionsLocked(target.Key())) + 1
	entry.IsActive = true
	entry.CreatedAt = now
	entry.UpdatedAt = now

	r.deactivateLocked(target.Key(), now)
	r.entries[entry.ID] = entry
	return cloneEntry(entry), nil
}

func (r *DictionaryRepository) Get(_ context.Context, id uuid.UUID) (*models.DictionaryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneEntry(entry), nil
}

func (r *DictionaryRepository) List(_ context.Context, filter models.DictionaryFilter) ([]*models.DictionaryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.DictionaryEntry
	for _, entry := range r.entries {
		if filter.Matches(entry) {
			out = append(out, cloneEntry(entry))
		}
	}
	sortEntries(out)
	return out, nil
}

func (r *DictionaryRepository) GetVersions(_ context.Context, key models.ColumnKey) ([]*models.DictionaryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.versionsLocked(key)
	out := make([]*models.DictionaryEntry, 0, len(versions))
	for i := range versions {
		out = append(out, cloneEntry(&versions[i]))
	}
	return out, nil
}

// versionsLocked returns copies of every version of key ordered by version.
func (r *DictionaryRepository) versionsLocked(key models.ColumnKey) []models.DictionaryEntry {
	var versions []models.DictionaryEntry
	for _, entry := range r.entries {
		if entry.Key() == key {
			versions = append(versions, *cloneEntry(entry))
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].VersionNumber < versions[j].VersionNumber })
	return versions
}

func (r *DictionaryRepository) deactivateLocked(key models.ColumnKey, now time.Time) {
	for _, entry := range r.entries {
		if entry.IsActive && entry.Key() == key {
			entry.IsActive = false
			entry.UpdatedAt = now
		}
	}
}

func sortEntries(entries []*models.DictionaryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Key() != b.Key() {
			return a.Key().String() < b.Key().String()
		}
		return a.VersionNumber < b.VersionNumber
	})
}

func cloneEntry(e *models.DictionaryEntry) *models.DictionaryEntry {
	c := *e
	c.Examples = append([]string{}, e.Examples...)
	c.Tags = append([]string{}, e.Tags...)
	return &c
}
