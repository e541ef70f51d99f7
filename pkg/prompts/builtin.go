package prompts

import (
	"sort"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/models"
)

// Template is a system message plus user template for one analysis type.
type Template struct {
	ActionType    string
	SystemMessage string
	UserTemplate  string
	// ExpectArray marks analysis types whose reply is a JSON array (possibly
	// wrapped in an object under a known key).
	ExpectArray bool
}

const jsonOnly = "Respond with JSON only. Do not add commentary before or after the JSON."

var builtins = map[string]Template{
	models.AnalysisColumnDocumentation: {
		ActionType:  models.AnalysisColumnDocumentation,
		ExpectArray: true,
		SystemMessage: "You are a data steward documenting a relational database for business users. " +
			"You describe what each column means using its name, type, statistics and sample values. " +
			"Never invent values that are not supported by the data. " + jsonOnly,
		UserTemplate: `Document every column of the table below.

## Schema
{schema_summary}

## Sample rows
{sample_rows}

Return a JSON array with one object per column:
[
  {
    "column_name": "exact column name",
    "business_name": "short human friendly name",
    "business_description": "what the value means to the business",
    "technical_description": "format, units, constraints, how it is populated",
    "data_type": "database type",
    "examples": ["up to 3 representative values"],
    "tags": ["classification tags such as PII, identifier, timestamp, status, metric"]
  }
]`,
	},
	models.AnalysisDataQuality: {
		ActionType:  models.AnalysisDataQuality,
		ExpectArray: false,
		SystemMessage: "You are a data quality analyst. You inspect column statistics and samples and " +
			"report concrete, evidence-backed issues. " + jsonOnly,
		UserTemplate: `Assess the data quality of the table below.

## Schema
{schema_summary}

## Sample rows
{sample_rows}

Return a JSON object:
{
  "overall_score": 0-100,
  "issues": [
    {
      "column_name": "affected column or null for table-level issues",
      "severity": "low | medium | high",
      "issue": "what is wrong",
      "evidence": "statistic or sample that shows it",
      "recommendation": "how to fix or monitor it"
    }
  ]
}`,
	},
	models.AnalysisTableSummary: {
		ActionType:  models.AnalysisTableSummary,
		ExpectArray: false,
		SystemMessage: "You are a data architect summarizing tables for a data catalog. " + jsonOnly,
		UserTemplate: `Summarize the purpose of the table below.

## Schema
{schema_summary}

## Sample rows
{sample_rows}

Return a JSON object:
{
  "entity": "the business entity one row represents",
  "summary": "two or three sentences on what the table stores and how it is used",
  "grain": "what makes a row unique",
  "key_columns": ["columns that identify or relate rows"],
  "domain": "business domain such as billing, identity, logistics"
}`,
	},
	models.AnalysisPIIDetection: {
		ActionType:  models.AnalysisPIIDetection,
		ExpectArray: true,
		SystemMessage: "You are a privacy engineer classifying columns that hold personal data. " +
			"Base every finding on the column name, type and sample values. " + jsonOnly,
		UserTemplate: `Identify columns holding personally identifiable or sensitive information.

## Schema
{schema_summary}

## Sample rows
{sample_rows}

Return a JSON array, one object per sensitive column (an empty array when none):
[
  {
    "column_name": "exact column name",
    "category": "email | phone | name | address | government_id | financial | health | credential | other",
    "confidence": "low | medium | high",
    "reason": "why the column is sensitive"
  }
]`,
	},
}

// Builtin returns the built-in template for an analysis type.
func Builtin(actionType string) (Template, bool) {
	t, ok := builtins[actionType]
	return t, ok
}

// AnalysisTypes returns the analysis types that have a built-in template, sorted.
func AnalysisTypes() []string {
	types := make([]string, 0, len(builtins))
	for t := range builtins {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ExpectsArray reports whether replies for actionType are JSON arrays.
// Unknown types accept any JSON value.
func ExpectsArray(actionType string) bool {
	return builtins[actionType].ExpectArray
}
