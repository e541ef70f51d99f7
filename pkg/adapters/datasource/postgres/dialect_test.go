package postgres

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/sql"
)

func TestDialect_QualifiedTable(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, `"public"."users"`, d.QualifiedTable("public", "users"))
	assert.Equal(t, `"users"`, d.QualifiedTable("", "users"))
	assert.Equal(t, `"we""ird"`, d.QuoteIdentifier(`we"ird`))
}

func TestDialect_StatementsPassReadOnlyValidation(t *testing.T) {
	d := Dialect{}
	sample := d.SampleSQL("public", "users", 10000, true, 2.5)
	statements := map[string]string{
		"schemas":      d.ListSchemasSQL(),
		"tables":       d.ListTablesSQL(),
		"columns":      d.ColumnsSQL(),
		"row estimate": d.RowEstimateSQL(),
		"count":        d.CountSQL("public", "users"),
		"sample":       sample,
		"stats":        d.ColumnStatsSQL(sample, "amount", true),
		"top values":   d.TopValuesSQL(sample, "update", 10),
	}

	for name, stmt := range statements {
		t.Run(name, func(t *testing.T) {
			result := sql.ValidateReadOnly(stmt)
			require.NoError(t, result.Error, stmt)
		})
	}
}

func TestDialect_SampleSQL(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, `SELECT * FROM "public"."users" LIMIT 50`, d.SampleSQL("public", "users", 50, false, 0))
	assert.Equal(t, `SELECT * FROM "public"."users" TABLESAMPLE SYSTEM (2.5) LIMIT 50`, d.SampleSQL("public", "users", 50, true, 2.5))
}

func TestDialect_IsNumericType(t *testing.T) {
	d := Dialect{}
	tests := []struct {
		dataType string
		want     bool
	}{
		{"integer", true},
		{"bigint", true},
		{"numeric", true},
		{"real", true},
		{"double precision", true},
		{"Double Precision", true},
		{"float8", true},
		{"text", false},
		{"boolean", false},
		{"timestamp with time zone", false},
	}

	for _, tt := range tests {
		t.Run(tt.dataType, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsNumericType(tt.dataType))
		})
	}
}

func TestWrapLimit(t *testing.T) {
	assert.Equal(t, "SELECT * FROM (SELECT 1) AS _limited LIMIT 100",
		wrapLimit(datasource.QueryRequest{SQL: "SELECT 1", Limit: 100}))
	assert.Equal(t, "SELECT * FROM (SELECT 1) AS _limited LIMIT 50 OFFSET 100",
		wrapLimit(datasource.QueryRequest{SQL: "SELECT 1", Limit: 50, Offset: 100}))
	assert.Equal(t, "SELECT * FROM (SELECT 1) AS _limited LIMIT 1000",
		wrapLimit(datasource.QueryRequest{SQL: "SELECT 1", Limit: 5000}))
}

func TestNormalizeValue(t *testing.T) {
	id := [16]byte{0x55, 0x0e, 0x84, 0x00, 0xe2, 0x9b, 0x41, 0xd4, 0xa7, 0x16, 0x44, 0x66, 0x55, 0x44, 0x00, 0x00}
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", normalizeValue(id))

	var n pgtype.Numeric
	require.NoError(t, n.Scan("12.5"))
	assert.Equal(t, 12.5, normalizeValue(n))
	assert.Nil(t, normalizeValue(pgtype.Numeric{}))

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2024-01-02T03:04:05Z", normalizeValue(ts))
	assert.Equal(t, "abc", normalizeValue([]byte("abc")))
	assert.Equal(t, int64(7), normalizeValue(int64(7)))
}

func TestFromDatasource(t *testing.T) {
	t.Setenv("WH_PASSWORD", "p@ss")

	cfg, err := FromDatasource(config.DatasourceConfig{ID: "wh", Host: "db", User: "reader", PasswordEnv: "WH_PASSWORD", Database: "analytics"})
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "require", cfg.SSLMode)
	assert.Equal(t, "postgresql://reader:p%40ss@db:5432/analytics?sslmode=require", cfg.ConnectionString())

	_, err = FromDatasource(config.DatasourceConfig{ID: "wh", Database: "x"})
	assert.Error(t, err)
}
