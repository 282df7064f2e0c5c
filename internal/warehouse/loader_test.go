package warehouse

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stageHeader = "id,title,num_comments,score,author,created_utc,url,upvote_ratio,over_18,edited,spoiler,stickied"

type post struct {
	id     string
	score  int
	author string
}

func stageRow(p post) string {
	return fmt.Sprintf("%s,Post %s,3,%d,%s,2024-01-01 10:00:00,https://example.com/%s,0.91,false,false,false,true",
		p.id, p.id, p.score, p.author, p.id)
}

func writeStage(t *testing.T, name string, posts ...post) string {
	t.Helper()
	lines := []string{stageHeader}
	for _, p := range posts {
		lines = append(lines, stageRow(p))
	}
	return writeStageRaw(t, name, strings.Join(lines, "\n")+"\n")
}

func writeStageRaw(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func openDuckDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	// One session so temp tables created by the loader are visible to
	// assertions afterwards.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func load(t *testing.T, db *sql.DB, table, source string) (*Result, error) {
	t.Helper()
	l := NewLoader(DuckDB{}, db)
	return l.Load(context.Background(), Request{RunID: "20240101", Table: table, Source: source})
}

func snapshot(t *testing.T, db *sql.DB, table string) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := Export(context.Background(), db, DuckDB{}, table, &buf)
	require.NoError(t, err)
	return buf.String()
}

func scores(t *testing.T, db *sql.DB) map[string]int {
	t.Helper()
	rows, err := db.Query(`SELECT id, score FROM reddit`)
	require.NoError(t, err)
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var id string
		var score int
		require.NoError(t, rows.Scan(&id, &score))
		out[id] = score
	}
	require.NoError(t, rows.Err())
	return out
}

func countStagingTables(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM duckdb_tables() WHERE table_name LIKE 'stage_%'`).Scan(&n))
	return n
}

func duplicateIDs(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) - count(DISTINCT id) FROM reddit`).Scan(&n))
	return n
}

func TestLoad_FreshTableBootstrap(t *testing.T) {
	db := openDuckDB(t)
	src := writeStage(t, "20240101.csv", post{id: "A", score: 10, author: "alice"}, post{id: "B", score: 5})

	res, err := load(t, db, "reddit", src)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Replaced)
	assert.EqualValues(t, 2, res.Inserted)
	assert.EqualValues(t, 2, res.NetNew())

	rows, err := db.Query(`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = 'reddit' ORDER BY ordinal_position`)
	require.NoError(t, err)
	defer rows.Close()
	var got []string
	for rows.Next() {
		var name, typ string
		require.NoError(t, rows.Scan(&name, &typ))
		got = append(got, name+" "+typ)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{
		"id VARCHAR",
		"title VARCHAR",
		"num_comments INTEGER",
		"score INTEGER",
		"author VARCHAR",
		"created_utc TIMESTAMP",
		"url VARCHAR",
		"upvote_ratio DOUBLE",
		"over_18 BOOLEAN",
		"edited BOOLEAN",
		"spoiler BOOLEAN",
		"stickied BOOLEAN",
	}, got)

	var pk int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM duckdb_constraints() WHERE table_name = 'reddit' AND constraint_type = 'PRIMARY KEY'`).Scan(&pk))
	assert.Equal(t, 1, pk)

	var authorNull bool
	require.NoError(t, db.QueryRow(`SELECT author IS NULL FROM reddit WHERE id = 'B'`).Scan(&authorNull))
	assert.True(t, authorNull)

	assert.Equal(t, map[string]int{"A": 10, "B": 5}, scores(t, db))
	assert.Zero(t, countStagingTables(t, db))
}

func TestLoad_UpsertReplacesByID(t *testing.T) {
	db := openDuckDB(t)
	_, err := load(t, db, "reddit", writeStage(t, "day1.csv", post{id: "A", score: 10}))
	require.NoError(t, err)

	res, err := load(t, db, "reddit", writeStage(t, "day2.csv", post{id: "A", score: 20}, post{id: "B", score: 5}))
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Replaced)
	assert.EqualValues(t, 2, res.Inserted)
	assert.EqualValues(t, 1, res.NetNew())

	assert.Equal(t, map[string]int{"A": 20, "B": 5}, scores(t, db))
	assert.Zero(t, duplicateIDs(t, db))
}

func TestLoad_IdempotentReplace(t *testing.T) {
	db := openDuckDB(t)
	src := writeStage(t, "20240101.csv", post{id: "A", score: 1}, post{id: "B", score: 2}, post{id: "C", score: 3})

	_, err := load(t, db, "reddit", src)
	require.NoError(t, err)
	once := snapshot(t, db, "reddit")

	res, err := load(t, db, "reddit", src)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Replaced)
	assert.EqualValues(t, 0, res.NetNew())

	assert.Equal(t, once, snapshot(t, db, "reddit"))
	assert.Zero(t, duplicateIDs(t, db))
}

func TestLoad_FailedCopyLeavesTargetUnchanged(t *testing.T) {
	db := openDuckDB(t)
	_, err := load(t, db, "reddit", writeStage(t, "good.csv", post{id: "A", score: 10}, post{id: "B", score: 5}))
	require.NoError(t, err)
	before := snapshot(t, db, "reddit")

	bad := writeStageRaw(t, "bad.csv", stageHeader+"\n"+
		stageRow(post{id: "A", score: 99})+"\n"+
		"C,Broken,many,1,bob,2024-01-01 10:00:00,https://example.com/C,0.5,false,false,false,false\n")

	_, err = load(t, db, "reddit", bad)
	require.Error(t, err)

	var loadErr *LoadExecutionError
	require.True(t, errors.As(err, &loadErr), "got %T: %v", err, err)
	assert.Equal(t, StepCopy, loadErr.Step)
	assert.NoError(t, loadErr.RollbackErr)
	assert.False(t, IsFatalBeforeMutation(err))

	assert.Equal(t, before, snapshot(t, db, "reddit"))
	assert.Zero(t, countStagingTables(t, db))
}

func TestLoad_FailedInsertRestoresDeletedRows(t *testing.T) {
	db := openDuckDB(t)
	_, err := load(t, db, "reddit", writeStage(t, "good.csv", post{id: "A", score: 10}, post{id: "B", score: 5}))
	require.NoError(t, err)
	before := snapshot(t, db, "reddit")

	// The staging table has no key, so the duplicate only fails on insert,
	// after A was already deleted from the target.
	dup := writeStage(t, "dup.csv", post{id: "A", score: 20}, post{id: "A", score: 30})
	_, err = load(t, db, "reddit", dup)

	var loadErr *LoadExecutionError
	require.True(t, errors.As(err, &loadErr), "got %T: %v", err, err)
	assert.Equal(t, StepInsert, loadErr.Step)
	assert.NoError(t, loadErr.RollbackErr)

	assert.Equal(t, before, snapshot(t, db, "reddit"))
	assert.Equal(t, map[string]int{"A": 10, "B": 5}, scores(t, db))
	assert.Zero(t, countStagingTables(t, db))
}

func TestLoad_MissingStageFileOnFreshWarehouse(t *testing.T) {
	db := openDuckDB(t)

	_, err := load(t, db, "reddit", filepath.Join(t.TempDir(), "absent.csv"))
	var loadErr *LoadExecutionError
	require.True(t, errors.As(err, &loadErr), "got %T: %v", err, err)
	assert.Equal(t, StepCopy, loadErr.Step)

	// The create-if-absent ran inside the rolled back transaction.
	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM duckdb_tables() WHERE table_name = 'reddit'`).Scan(&n))
	assert.Zero(t, n)
}

func TestLoad_HostileTableNameIsQuoted(t *testing.T) {
	db := openDuckDB(t)
	table := `posts"; DROP TABLE reddit; --`

	_, err := load(t, db, "reddit", writeStage(t, "a.csv", post{id: "A", score: 1}))
	require.NoError(t, err)
	_, err = load(t, db, table, writeStage(t, "b.csv", post{id: "B", score: 2}))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"A": 1}, scores(t, db))
	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM "posts""; DROP TABLE reddit; --"`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestLoad_SchemaQualifiedTable(t *testing.T) {
	db := openDuckDB(t)
	_, err := load(t, db, "main.reddit", writeStage(t, "a.csv", post{id: "A", score: 7}))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 7}, scores(t, db))
}

type countingConnector struct {
	calls int
	err   error
}

func (c *countingConnector) Conn(context.Context) (*sql.Conn, error) {
	c.calls++
	return nil, c.err
}

func TestLoad_RejectsMalformedRunIDBeforeConnecting(t *testing.T) {
	conn := &countingConnector{err: errors.New("must not be called")}
	l := NewLoader(Redshift{}, conn)

	_, err := l.Load(context.Background(), Request{
		RunID:      "not-a-date",
		Table:      "reddit",
		Source:     "s3://bucket/not-a-date.csv",
		Credential: "arn:aws:iam::1:role/r",
	})

	var inErr *InvalidInputError
	require.True(t, errors.As(err, &inErr), "got %T: %v", err, err)
	assert.Equal(t, "run identifier", inErr.Field)
	assert.True(t, IsFatalBeforeMutation(err))
	assert.Zero(t, conn.calls)
}

func TestLoad_RejectsBadTableAndSourceBeforeConnecting(t *testing.T) {
	conn := &countingConnector{}
	l := NewLoader(Redshift{}, conn)

	_, err := l.Load(context.Background(), Request{RunID: "20240101", Table: "a.b.c", Source: "s3://b/k.csv", Credential: "r"})
	var inErr *InvalidInputError
	require.True(t, errors.As(err, &inErr))
	assert.Equal(t, "table name", inErr.Field)

	_, err = l.Load(context.Background(), Request{RunID: "20240101", Table: "reddit", Source: "/local/k.csv", Credential: "r"})
	require.True(t, errors.As(err, &inErr))
	assert.Equal(t, "stage file location", inErr.Field)

	assert.Zero(t, conn.calls)
}

func TestLoad_ConnectionFailure(t *testing.T) {
	conn := &countingConnector{err: errors.New("dial tcp 10.0.0.1:5439: connect: connection refused")}
	l := NewLoader(Redshift{}, conn)

	_, err := l.Load(context.Background(), Request{
		RunID:      "20240101",
		Table:      "reddit",
		Source:     "s3://bucket/20240101.csv",
		Credential: "arn:aws:iam::1:role/r",
	})

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr), "got %T: %v", err, err)
	assert.Equal(t, "redshift", connErr.Engine)
	assert.True(t, IsFatalBeforeMutation(err))
	assert.Equal(t, 1, conn.calls)
}

func TestLoad_StagingNameIsPerInvocation(t *testing.T) {
	db := openDuckDB(t)
	l := NewLoader(DuckDB{}, db)
	l.newToken = func() string { return "fixed" }

	res, err := l.Load(context.Background(), Request{RunID: "20240101", Table: "reddit", Source: writeStage(t, "a.csv", post{id: "A"})})
	require.NoError(t, err)
	assert.Equal(t, "stage_fixed", res.Staging)
	assert.Equal(t, "reddit", res.Table)
}
