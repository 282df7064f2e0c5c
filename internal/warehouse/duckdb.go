package warehouse

import (
	"errors"
	"fmt"
	"strings"

	duckdb "github.com/duckdb/duckdb-go/v2"

	"github.com/BartekS5/stageload/pkg/models"
)

// DuckDB is an embedded engine used for local runs. It reads stage files
// from paths (or any URL its extensions can open); the credential is unused.
type DuckDB struct{}

func init() { register(DuckDB{}) }

func (DuckDB) Name() string       { return "duckdb" }
func (DuckDB) DriverName() string { return "duckdb" }

// DSN is the database file path. An empty Database is an in-memory database.
func (DuckDB) DSN(p ConnParams) string { return p.Database }

func (DuckDB) QuoteIdent(i Ident) string    { return quoteParts(i, quoteDouble) }
func (DuckDB) QuoteLiteral(v string) string { return QuoteLiteral(v) }

func (DuckDB) StagingIdent(token string) Ident {
	return Ident{parts: []string{"stage_" + token}}
}

func (DuckDB) ValidateSource(source, _ string) error {
	return validateLocation(source)
}

func (d DuckDB) CreateTarget(target Ident) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.QuoteIdent(target), columnDefs(quoteDouble, duckdbType))
}

func (d DuckDB) CreateStaging(staging, target Ident) string {
	return fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT * FROM %s LIMIT 0", d.QuoteIdent(staging), d.QuoteIdent(target))
}

func (d DuckDB) Copy(staging Ident, source, _ string) string {
	return fmt.Sprintf("COPY %s FROM %s (FORMAT csv, HEADER true, DELIMITER ',')", d.QuoteIdent(staging), d.QuoteLiteral(source))
}

func (d DuckDB) DeleteMatching(target, staging Ident) string {
	key := quoteDouble(models.KeyColumn)
	return fmt.Sprintf("DELETE FROM %s WHERE %s IN (SELECT %s FROM %s)", d.QuoteIdent(target), key, key, d.QuoteIdent(staging))
}

func (d DuckDB) Insert(target, staging Ident) string {
	return fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", d.QuoteIdent(target), d.QuoteIdent(staging))
}

func (d DuckDB) Drop(staging Ident) string {
	return "DROP TABLE " + d.QuoteIdent(staging)
}

func (d DuckDB) DropIfExists(staging Ident) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdent(staging)
}

func (DuckDB) ErrorCode(err error) string {
	var dErr *duckdb.Error
	if errors.As(err, &dErr) {
		return fmt.Sprint(dErr.Type)
	}
	return ""
}

func duckdbType(c models.Column) string {
	switch c.Type {
	case models.TypeKey, models.TypeText:
		return "VARCHAR"
	case models.TypeInteger:
		return "INTEGER"
	case models.TypeTimestamp:
		return "TIMESTAMP"
	case models.TypeFloat:
		return "DOUBLE"
	case models.TypeBoolean:
		return "BOOLEAN"
	}
	panic(fmt.Sprintf("warehouse: unmapped column type %d", c.Type))
}

// validateLocation accepts any non-empty location without control characters.
func validateLocation(source string) error {
	if strings.TrimSpace(source) == "" {
		return errors.New("stage file location is required")
	}
	if strings.ContainsFunc(source, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		return errors.New("stage file location contains control characters")
	}
	return nil
}
