package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntrySource records who produced a dictionary version.
type EntrySource string

const (
	EntrySourceLLMInitial  EntrySource = "llm_initial"
	EntrySourceHumanEdited EntrySource = "human_edited"
)

// IsValid checks if the source is a known value.
func (s EntrySource) IsValid() bool {
	return s == EntrySourceLLMInitial || s == EntrySourceHumanEdited
}

// ColumnKey identifies a column across all of its dictionary versions.
type ColumnKey struct {
	Database string `json:"database_name"`
	Schema   string `json:"schema_name"`
	Table    string `json:"table_name"`
	Column   string `json:"column_name"`
}

func (k ColumnKey) String() string {
	return strings.Join([]string{k.Database, k.Schema, k.Table, k.Column}, ".")
}

// DictionaryEntry is one version of the documentation of a column.
type DictionaryEntry struct {
	ID                   uuid.UUID   `json:"id"`
	DatabaseName         string      `json:"database_name"`
	SchemaName           string      `json:"schema_name"`
	TableName            string      `json:"table_name"`
	ColumnName           string      `json:"column_name"`
	VersionNumber        int         `json:"version_number"`
	IsActive             bool        `json:"is_active"`
	VersionNotes         string      `json:"version_notes,omitempty"`
	BusinessName         string      `json:"business_name,omitempty"`
	BusinessDescription  string      `json:"business_description,omitempty"`
	TechnicalDescription string      `json:"technical_description,omitempty"`
	DataType             string      `json:"data_type,omitempty"`
	Examples             []string    `json:"examples"`
	Tags                 []string    `json:"tags"`
	Source               EntrySource `json:"source"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

func (e *DictionaryEntry) Key() ColumnKey {
	return ColumnKey{Database: e.DatabaseName, Schema: e.SchemaName, Table: e.TableName, Column: e.ColumnName}
}

// DictionaryEntryInput is a machine-generated description of one column.
type DictionaryEntryInput struct {
	SchemaName           string
	TableName            string
	ColumnName           string
	BusinessName         string
	BusinessDescription  string
	TechnicalDescription string
	DataType             string
	Examples             []string
	Tags                 []string
}

// ApplyTo copies the descriptive fields onto an entry.
func (in *DictionaryEntryInput) ApplyTo(e *DictionaryEntry) {
	e.BusinessName = in.BusinessName
	e.BusinessDescription = in.BusinessDescription
	e.TechnicalDescription = in.TechnicalDescription
	e.DataType = in.DataType
	e.Examples = append([]string{}, in.Examples...)
	e.Tags = NormalizeTags(in.Tags)
}

// DictionaryEntryUpdate holds operator edits. Nil fields are left untouched.
type DictionaryEntryUpdate struct {
	BusinessName         *string   `json:"business_name,omitempty"`
	BusinessDescription  *string   `json:"business_description,omitempty"`
	TechnicalDescription *string   `json:"technical_description,omitempty"`
	DataType             *string   `json:"data_type,omitempty"`
	Examples             *[]string `json:"examples,omitempty"`
	Tags                 *[]string `json:"tags,omitempty"`
	VersionNotes         *string   `json:"version_notes,omitempty"`
}

// ApplyTo merges the edits into e and marks it human edited.
func (u *DictionaryEntryUpdate) ApplyTo(e *DictionaryEntry) {
	if u.BusinessName != nil {
		e.BusinessName = *u.BusinessName
	}
	if u.BusinessDescription != nil {
		e.BusinessDescription = *u.BusinessDescription
	}
	if u.TechnicalDescription != nil {
		e.TechnicalDescription = *u.TechnicalDescription
	}
	if u.DataType != nil {
		e.DataType = *u.DataType
	}
	if u.Examples != nil {
		e.Examples = append([]string{}, (*u.Examples)...)
	}
	if u.Tags != nil {
		e.Tags = NormalizeTags(*u.Tags)
	}
	if u.VersionNotes != nil {
		e.VersionNotes = *u.VersionNotes
	}
	e.Source = EntrySourceHumanEdited
}

// NormalizeTags trims, de-duplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DictionaryFilter narrows List results. Empty fields match everything.
type DictionaryFilter struct {
	DatabaseName string
	SchemaName   string
	TableName    string
	ActiveOnly   bool
}

// Matches reports whether e satisfies the filter.
func (f DictionaryFilter) Matches(e *DictionaryEntry) bool {
	if f.DatabaseName != "" && f.DatabaseName != e.DatabaseName {
		return false
	}
	if f.SchemaName != "" && f.SchemaName != e.SchemaName {
		return false
	}
	if f.TableName != "" && f.TableName != e.TableName {
		return false
	}
	return !f.ActiveOnly || e.IsActive
}

// ============================================================================
// Versioned upsert planning
// ============================================================================

type UpsertAction string

const (
	UpsertInsertActive   UpsertAction = "insert_active"
	UpsertUpdateInPlace  UpsertAction = "update_in_place"
	UpsertInsertInactive UpsertAction = "insert_inactive"
)

// UpsertPlan tells a store what to do with one machine-generated entry.
type UpsertPlan struct {
	Action        UpsertAction
	Target        *DictionaryEntry // row updated in place
	VersionNumber int              // version of the row to insert
}

// PlanDictionaryUpsert decides how a machine-generated entry lands given the
// existing versions of its key:
//   - no versions: insert version 1, active
//   - active llm_initial version: overwrite it in place
//   - active human_edited version: insert max+1, inactive, so the edit stays live
//
// A key with versions but no active row gets a new active max+1 version.
func PlanDictionaryUpsert(versions []DictionaryEntry) UpsertPlan {
	if len(versions) == 0 {
		return UpsertPlan{Action: UpsertInsertActive, VersionNumber: 1}
	}

	maxVersion := 0
	var active *DictionaryEntry
	for i := range versions {
		if versions[i].VersionNumber > maxVersion {
			maxVersion = versions[i].VersionNumber
		}
		if versions[i].IsActive {
			active = &versions[i]
		}
	}

	switch {
	case active == nil:
		return UpsertPlan{Action: UpsertInsertActive, VersionNumber: maxVersion + 1}
	case active.Source == EntrySourceHumanEdited:
		return UpsertPlan{Action: UpsertInsertInactive, VersionNumber: maxVersion + 1}
	default:
		return UpsertPlan{Action: UpsertUpdateInPlace, Target: active, VersionNumber: active.VersionNumber}
	}
}

// MaxVersion returns the highest version number among versions.
func MaxVersion(versions []DictionaryEntry) int {
	max := 0
	for _, v := range versions {
		if v.VersionNumber > max {
			max = v.VersionNumber
		}
	}
	return max
}
