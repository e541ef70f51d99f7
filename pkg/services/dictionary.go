package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/repositories"
)

// DictionaryService is the versioned data dictionary.
type DictionaryService interface {
	// Upsert lands machine-generated entries. Entries without a column name
	// are rejected and counted; the first store failure stops the batch.
	Upsert(ctx context.Context, databaseName string, entries []models.DictionaryEntryInput) (*UpsertSummary, error)

	// IngestParsed converts a parsed column_documentation reply for one
	// table into entries and upserts them.
	IngestParsed(ctx context.Context, databaseName, schema, table string, parsed json.RawMessage) *models.IngestionResult

	Activate(ctx context.Context, id uuid.UUID) (*models.DictionaryEntry, error)
	Update(ctx context.Context, id uuid.UUID, upd models.DictionaryEntryUpdate, createNewVersion bool) (*models.DictionaryEntry, error)
	Get(ctx context.Context, id uuid.UUID) (*models.DictionaryEntry, error)
	List(ctx context.Context, filter models.DictionaryFilter) ([]*models.DictionaryEntry, error)
	GetVersions(ctx context.Context, key models.ColumnKey) ([]*models.DictionaryEntry, error)
}

// UpsertSummary counts how a batch of entries landed.
type UpsertSummary struct {
	Processed       int `json:"processed"`
	Inserted        int `json:"inserted"`
	UpdatedInPlace  int `json:"updated_in_place"`
	PendingVersions int `json:"pending_versions"`
	Rejected        int `json:"rejected"`
}

type dictionaryService struct {
	repo   repositories.DictionaryRepository
	logger *zap.Logger
}

// NewDictionaryService creates a new dictionary service.
func NewDictionaryService(repo repositories.DictionaryRepository, logger *zap.Logger) DictionaryService {
	return &dictionaryService{
		repo:   repo,
		logger: logger.Named("dictionary"),
	}
}

var _ DictionaryService = (*dictionaryService)(nil)

func (s *dictionaryService) Upsert(ctx context.Context, databaseName string, entries []models.DictionaryEntryInput) (*UpsertSummary, error) {
	summary := &UpsertSummary{}
	if strings.TrimSpace(databaseName) == "" {
		return summary, fmt.Errorf("%w: database name is required", apperrors.ErrInvalidInput)
	}

	for _, in := range entries {
		in.SchemaName = strings.TrimSpace(in.SchemaName)
		in.TableName = strings.TrimSpace(in.TableName)
		in.ColumnName = strings.TrimSpace(in.ColumnName)
		if in.SchemaName == "" || in.TableName == "" || in.ColumnName == "" {
			summary.Rejected++
			continue
		}

		_, action, err := s.repo.Upsert(ctx, databaseName, in)
		if err != nil {
			return summary, fmt.Errorf("failed to upsert %s.%s.%s: %w", in.SchemaName, in.TableName, in.ColumnName, err)
		}

		summary.Processed++
		switch action {
		case models.UpsertInsertActive:
			summary.Inserted++
		case models.UpsertUpdateInPlace:
			summary.UpdatedInPlace++
		case models.UpsertInsertInactive:
			summary.PendingVersions++
		}
	}

	s.logger.Debug("Upserted dictionary entries",
		zap.String("database", databaseName),
		zap.Int("processed", summary.Processed),
		zap.Int("pending_versions", summary.PendingVersions),
		zap.Int("rejected", summary.Rejected))
	return summary, nil
}

func (s *dictionaryService) IngestParsed(ctx context.Context, databaseName, schema, table string, parsed json.RawMessage) *models.IngestionResult {
	entries, err := EntriesFromParsed(parsed, schema, table)
	if err != nil {
		return &models.IngestionResult{
			Status:    models.IngestionSkipped,
			Reason:    err.Error(),
			ErrorCode: apperrors.CodeParseError,
		}
	}

	summary, err := s.Upsert(ctx, databaseName, entries)
	if err != nil {
		code := apperrors.CodeIngestionError
		if errors.Is(err, apperrors.ErrVersionConflict) {
			code = apperrors.CodeVersionConflict
		}
		s.logger.Warn("Dictionary ingestion failed",
			zap.String("table", schema+"."+table),
			zap.Int("processed", summary.Processed),
			zap.Error(err))
		return &models.IngestionResult{
			Status:    models.IngestionFailed,
			Processed: summary.Processed,
			Rejected:  summary.Rejected,
			Reason:    err.Error(),
			ErrorCode: code,
		}
	}

	return &models.IngestionResult{
		Status:    models.IngestionProcessed,
		Processed: summary.Processed,
		Rejected:  summary.Rejected,
	}
}

func (s *dictionaryService) Activate(ctx context.Context, id uuid.UUID) (*models.DictionaryEntry, error) {
	entry, err := s.repo.Activate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Activated dictionary version",
		zap.String("key", entry.Key().String()),
		zap.Int("version", entry.VersionNumber))
	return entry, nil
}

func (s *dictionaryService) Update(ctx context.Context, id uuid.UUID, upd models.DictionaryEntryUpdate, createNewVersion bool) (*models.DictionaryEntry, error) {
	entry, err := s.repo.Update(ctx, id, upd, createNewVersion)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Edited dictionary entry",
		zap.String("key", entry.Key().String()),
		zap.Int("version", entry.VersionNumber),
		zap.Bool("new_version", createNewVersion))
	return entry, nil
}

func (s *dictionaryService) Get(ctx context.Context, id uuid.UUID) (*models.DictionaryEntry, error) {
	return s.repo.Get(ctx, id)
}

func (s *dictionaryService) List(ctx context.Context, filter models.DictionaryFilter) ([]*models.DictionaryEntry, error) {
	return s.repo.List(ctx, filter)
}

func (s *dictionaryService) GetVersions(ctx context.Context, key models.ColumnKey) ([]*models.DictionaryEntry, error) {
	if key.Database == "" || key.Schema == "" || key.Table == "" || key.Column == "" {
		return nil, fmt.Errorf("%w: database, schema, table and column are required", apperrors.ErrInvalidInput)
	}
	return s.repo.GetVersions(ctx, key)
}

// EntriesFromParsed maps a parsed array of column objects onto dictionary
// inputs for schema.table. Field names drift between model replies, so common
// synonyms are accepted. Non-object items are skipped.
func EntriesFromParsed(parsed json.RawMessage, schema, table string) ([]models.DictionaryEntryInput, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(parsed, &items); err != nil {
		return nil, fmt.Errorf("expected a JSON array of column entries: %w", err)
	}

	entries := make([]models.DictionaryEntryInput, 0, len(items))
	for _, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		entries = append(entries, models.DictionaryEntryInput{
			SchemaName:           schema,
			TableName:            table,
			ColumnName:           jsonutil.FirstString(obj, "column_name", "column", "name"),
			BusinessName:         jsonutil.FirstString(obj, "business_name", "display_name"),
			BusinessDescription:  jsonutil.FirstString(obj, "business_description", "description"),
			TechnicalDescription: jsonutil.FirstString(obj, "technical_description", "technical_notes"),
			DataType:             jsonutil.FirstString(obj, "data_type", "type"),
			Examples:             jsonutil.FlexibleStringList(obj["examples"]),
			Tags:                 jsonutil.FlexibleStringList(obj["tags"]),
		})
	}
	return entries, nil
}
