package warehouse

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BartekS5/stageload/pkg/models"
)

// ConnParams are the warehouse connection settings a dialect turns into a
// driver DSN.
type ConnParams struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Dialect renders the merge protocol's statements for one engine.
type Dialect interface {
	Name() string
	// DriverName is the database/sql driver the dialect's DSN is for.
	DriverName() string
	DSN(p ConnParams) string

	QuoteIdent(Ident) string
	QuoteLiteral(string) string
	// StagingIdent names the per-invocation staging table from a unique token.
	StagingIdent(token string) Ident
	// ValidateSource checks the stage file location and credential before any
	// I/O. It does not check authorization.
	ValidateSource(source, credential string) error

	CreateTarget(target Ident) string
	CreateStaging(staging, target Ident) string
	Copy(staging Ident, source, credential string) string
	DeleteMatching(target, staging Ident) string
	Insert(target, staging Ident) string
	Drop(staging Ident) string
	DropIfExists(staging Ident) string

	// ErrorCode extracts the engine's error code from a driver error, or "".
	ErrorCode(err error) string
}

var dialects = map[string]Dialect{}

func register(d Dialect) { dialects[d.Name()] = d }

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown warehouse engine %q (supported: %s)", name, strings.Join(DialectNames(), ", "))
	}
	return d, nil
}

// DialectNames lists the registered engines in sorted order.
func DialectNames() []string {
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type statement struct {
	step Step
	sql  string
}

// plan is the ordered merge transaction. Each statement's postcondition is
// the next one's precondition.
func plan(d Dialect, target, staging Ident, source, credential string) []statement {
	return []statement{
		{StepCreateTarget, d.CreateTarget(target)},
		{StepCreateStaging, d.CreateStaging(staging, target)},
		{StepCopy, d.Copy(staging, source, credential)},
		{StepDelete, d.DeleteMatching(target, staging)},
		{StepInsert, d.Insert(target, staging)},
		{StepDropStaging, d.Drop(staging)},
	}
}

// columnDefs renders the Target Table column list with the key column as
// primary key.
func columnDefs(q func(string) string, typeName func(models.Column) string) string {
	defs := make([]string, len(models.Columns))
	for i, c := range models.Columns {
		def := q(c.Name) + " " + typeName(c)
		if c.Type == models.TypeKey {
			def += " PRIMARY KEY"
		}
		defs[i] = def
	}
	return strings.Join(defs, ", ")
}
