package warehouse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdent(t *testing.T) {
	i, err := ParseIdent("reddit")
	require.NoError(t, err)
	assert.Equal(t, "reddit", i.String())

	i, err = ParseIdent("analytics.reddit")
	require.NoError(t, err)
	assert.Equal(t, `"analytics"."reddit"`, DuckDB{}.QuoteIdent(i))
	assert.Equal(t, "analytics.reddit", i.String())

	bad := []string{"", ".", "a.", ".b", "a.b.c", "tab\x00le", "line\nbreak", strings.Repeat("x", 128)}
	for _, name := range bad {
		_, err := ParseIdent(name)
		assert.Error(t, err, "name %q", name)
	}
}

func TestQuoting(t *testing.T) {
	i, err := ParseIdent(`posts"; DROP TABLE users; --`)
	require.NoError(t, err)

	assert.Equal(t, `"posts""; DROP TABLE users; --"`, Redshift{}.QuoteIdent(i))
	assert.Equal(t, `[posts"; DROP TABLE users; --]`, SQLServer{}.QuoteIdent(i))

	j, err := ParseIdent("dbo.we]ird")
	require.NoError(t, err)
	assert.Equal(t, `[dbo].[we]]ird]`, SQLServer{}.QuoteIdent(j))

	assert.Equal(t, `'it''s'`, QuoteLiteral("it's"))
	assert.Equal(t, `'a\\b'`, Redshift{}.QuoteLiteral(`a\b`))
	assert.Equal(t, `N'it''s'`, SQLServer{}.QuoteLiteral("it's"))
}
