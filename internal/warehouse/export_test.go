package warehouse

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportWritesHeaderAndRows(t *testing.T) {
	db := openDuckDB(t)
	_, err := load(t, db, "reddit", writeStage(t, "a.csv", post{id: "B", score: 2, author: "bob"}, post{id: "A", score: 1}))
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := Export(context.Background(), db, DuckDB{}, "reddit", &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, stageHeader, lines[0])
	assert.Equal(t, "A,Post A,3,1,,2024-01-01 10:00:00,https://example.com/A,0.91,false,false,false,true", lines[1])
	assert.Equal(t, stageRow(post{id: "B", score: 2, author: "bob"}), lines[2])
}

func TestExportRejectsBadTable(t *testing.T) {
	conn := &countingConnector{}
	_, err := Export(context.Background(), conn, DuckDB{}, "", &bytes.Buffer{})
	var inErr *InvalidInputError
	require.True(t, errors.As(err, &inErr))
	assert.Zero(t, conn.calls)
}
