package warehouse

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxIdentLen is Redshift's limit; DuckDB and SQL Server allow at least this.
const maxIdentLen = 127

// Ident is a possibly schema-qualified table name. Parts are kept raw and
// only ever reach SQL through a dialect's quoting.
type Ident struct {
	parts []string
}

// ParseIdent splits name on "." into at most two parts and validates each.
func ParseIdent(name string) (Ident, error) {
	if name == "" {
		return Ident{}, errors.New("name is required")
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return Ident{}, fmt.Errorf("expected table or schema.table, got %d parts", len(parts))
	}
	for _, p := range parts {
		if err := validateIdentPart(p); err != nil {
			return Ident{}, err
		}
	}
	return Ident{parts: parts}, nil
}

func validateIdentPart(p string) error {
	if p == "" {
		return errors.New("empty name part")
	}
	if len(p) > maxIdentLen {
		return fmt.Errorf("name part must be at most %d bytes", maxIdentLen)
	}
	if !utf8.ValidString(p) {
		return errors.New("name is not valid UTF-8")
	}
	for _, r := range p {
		if unicode.IsControl(r) {
			return errors.New("name contains control characters")
		}
	}
	return nil
}

func (i Ident) String() string { return strings.Join(i.parts, ".") }

// quoteParts quotes each part with q and joins them with dots.
func quoteParts(i Ident, q func(string) string) string {
	quoted := make([]string, len(i.parts))
	for n, p := range i.parts {
		quoted[n] = q(p)
	}
	return strings.Join(quoted, ".")
}

// quoteDouble is the standard SQL form: "name" with embedded quotes doubled.
func quoteDouble(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// quoteBracket is the SQL Server form: [name] with embedded ] doubled.
func quoteBracket(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}

// QuoteLiteral wraps a value in single quotes, doubling embedded quotes.
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
