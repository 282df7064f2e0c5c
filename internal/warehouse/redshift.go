package warehouse

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/BartekS5/stageload/pkg/models"
)

// Redshift speaks the Postgres wire protocol and loads from S3 with COPY.
type Redshift struct{}

func init() { register(Redshift{}) }

func (Redshift) Name() string       { return "redshift" }
func (Redshift) DriverName() string { return "pgx" }

// DSN uses the simple query protocol; Redshift's prepared statement support
// is limited and COPY cannot be prepared.
func (Redshift) DSN(p ConnParams) string {
	port := p.Port
	if port == 0 {
		port = 5439
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(port)),
		Path:   "/" + p.Database,
	}
	q := url.Values{}
	q.Set("sslmode", "require")
	q.Set("default_query_exec_mode", "simple_protocol")
	u.RawQuery = q.Encode()
	return u.String()
}

func (Redshift) QuoteIdent(i Ident) string { return quoteParts(i, quoteDouble) }

// QuoteLiteral also doubles backslashes, which Redshift treats as escapes
// inside string literals.
func (Redshift) QuoteLiteral(v string) string {
	return QuoteLiteral(strings.ReplaceAll(v, `\`, `\\`))
}

func (Redshift) StagingIdent(token string) Ident {
	return Ident{parts: []string{"stage_" + token}}
}

func (Redshift) ValidateSource(source, credential string) error {
	if _, _, err := ParseS3URI(source); err != nil {
		return err
	}
	if strings.TrimSpace(credential) == "" {
		return errors.New("an IAM role is required for COPY from S3")
	}
	return nil
}

func (r Redshift) CreateTarget(target Ident) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", r.QuoteIdent(target), columnDefs(quoteDouble, redshiftType))
}

func (r Redshift) CreateStaging(staging, target Ident) string {
	return fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s)", r.QuoteIdent(staging), r.QuoteIdent(target))
}

func (r Redshift) Copy(staging Ident, source, credential string) string {
	return fmt.Sprintf("COPY %s FROM %s IAM_ROLE %s IGNOREHEADER 1 DELIMITER ',' CSV EMPTYASNULL",
		r.QuoteIdent(staging), r.QuoteLiteral(source), r.QuoteLiteral(credential))
}

func (r Redshift) DeleteMatching(target, staging Ident) string {
	t, s := r.QuoteIdent(target), r.QuoteIdent(staging)
	key := quoteDouble(models.KeyColumn)
	return fmt.Sprintf("DELETE FROM %s USING %s WHERE %s.%s = %s.%s", t, s, t, key, s, key)
}

func (r Redshift) Insert(target, staging Ident) string {
	return fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", r.QuoteIdent(target), r.QuoteIdent(staging))
}

func (r Redshift) Drop(staging Ident) string {
	return "DROP TABLE " + r.QuoteIdent(staging)
}

func (r Redshift) DropIfExists(staging Ident) string {
	return "DROP TABLE IF EXISTS " + r.QuoteIdent(staging)
}

func (Redshift) ErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func redshiftType(c models.Column) string {
	switch c.Type {
	case models.TypeKey:
		return "VARCHAR(256)"
	case models.TypeText:
		return "VARCHAR(MAX)"
	case models.TypeInteger:
		return "INTEGER"
	case models.TypeTimestamp:
		return "TIMESTAMP"
	case models.TypeFloat:
		return "FLOAT8"
	case models.TypeBoolean:
		return "BOOLEAN"
	}
	panic(fmt.Sprintf("warehouse: unmapped column type %d", c.Type))
}

// ParseS3URI splits "s3://bucket/path/to/key" into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parse S3 location %q: %w", uri, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("expected s3:// scheme, got %q in %q", u.Scheme, uri)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("empty bucket in S3 location %q", uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("empty key in S3 location %q", uri)
	}
	return u.Host, key, nil
}
