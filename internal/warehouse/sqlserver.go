package warehouse

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/BartekS5/stageload/pkg/models"
)

// SQLServer loads with BULK INSERT. The credential, when set, names an
// EXTERNAL DATA SOURCE that the stage file location is relative to.
type SQLServer struct{}

func init() { register(SQLServer{}) }

func (SQLServer) Name() string       { return "sqlserver" }
func (SQLServer) DriverName() string { return "sqlserver" }

func (SQLServer) DSN(p ConnParams) string {
	port := p.Port
	if port == 0 {
		port = 1433
	}
	u := url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(port)),
	}
	q := url.Values{}
	q.Set("database", p.Database)
	u.RawQuery = q.Encode()
	return u.String()
}

func (SQLServer) QuoteIdent(i Ident) string    { return quoteParts(i, quoteBracket) }
func (SQLServer) QuoteLiteral(v string) string { return "N" + QuoteLiteral(v) }

// StagingIdent returns a session-local #temp table.
func (SQLServer) StagingIdent(token string) Ident {
	return Ident{parts: []string{"#stage_" + token}}
}

func (SQLServer) ValidateSource(source, _ string) error {
	return validateLocation(source)
}

func (s SQLServer) CreateTarget(target Ident) string {
	return fmt.Sprintf("IF OBJECT_ID(%s, N'U') IS NULL CREATE TABLE %s (%s)",
		s.QuoteLiteral(s.QuoteIdent(target)), s.QuoteIdent(target), columnDefs(quoteBracket, sqlserverType))
}

func (s SQLServer) CreateStaging(staging, target Ident) string {
	return fmt.Sprintf("SELECT TOP 0 * INTO %s FROM %s", s.QuoteIdent(staging), s.QuoteIdent(target))
}

func (s SQLServer) Copy(staging Ident, source, credential string) string {
	opts := "FORMAT = 'CSV', FIRSTROW = 2, FIELDTERMINATOR = ','"
	if credential != "" {
		opts += ", DATA_SOURCE = " + QuoteLiteral(credential)
	}
	return fmt.Sprintf("BULK INSERT %s FROM %s WITH (%s)", s.QuoteIdent(staging), QuoteLiteral(source), opts)
}

func (s SQLServer) DeleteMatching(target, staging Ident) string {
	key := quoteBracket(models.KeyColumn)
	return fmt.Sprintf("DELETE t FROM %s AS t INNER JOIN %s AS s ON t.%s = s.%s",
		s.QuoteIdent(target), s.QuoteIdent(staging), key, key)
}

func (s SQLServer) Insert(target, staging Ident) string {
	return fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", s.QuoteIdent(target), s.QuoteIdent(staging))
}

func (s SQLServer) Drop(staging Ident) string {
	return "DROP TABLE " + s.QuoteIdent(staging)
}

func (s SQLServer) DropIfExists(staging Ident) string {
	return "DROP TABLE IF EXISTS " + s.QuoteIdent(staging)
}

func (SQLServer) ErrorCode(err error) string {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return strconv.Itoa(int(msErr.Number))
	}
	return ""
}

func sqlserverType(c models.Column) string {
	switch c.Type {
	case models.TypeKey:
		return "NVARCHAR(450)"
	case models.TypeText:
		return "NVARCHAR(MAX)"
	case models.TypeInteger:
		return "INT"
	case models.TypeTimestamp:
		return "DATETIME2"
	case models.TypeFloat:
		return "FLOAT"
	case models.TypeBoolean:
		return "BIT"
	}
	panic(fmt.Sprintf("warehouse: unmapped column type %d", c.Type))
}
