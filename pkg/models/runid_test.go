package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRunID(t *testing.T) {
	valid := []string{"20240101", "20240229", "19991231"}
	for _, s := range valid {
		t.Run(s, func(t *testing.T) {
			id, err := ParseRunID(s)
			require.NoError(t, err)
			assert.Equal(t, s, id.String())
		})
	}

	invalid := []string{"", "not-a-date", "2024-01-01", "20230229", "20241301", "20240132", "2024010", "202401011", " 20240101"}
	for _, s := range invalid {
		t.Run("reject "+s, func(t *testing.T) {
			_, err := ParseRunID(s)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRunID))
		})
	}
}

func TestRunIDHelpers(t *testing.T) {
	id := RunIDFor(time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("X", -2*3600)))
	assert.Equal(t, RunID("20240310"), id)
	assert.Equal(t, "20240310.csv", id.FileName())
}

func TestDedupeKeepsFirst(t *testing.T) {
	in := []Record{{ID: "a", Score: 1}, {ID: "b"}, {ID: "a", Score: 2}}
	out := Dedupe(in)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Score)
	assert.Equal(t, "b", out[1].ID)
	assert.Equal(t, []string{"id", "title", "num_comments", "score", "author", "created_utc", "url", "upvote_ratio", "over_18", "edited", "spoiler", "stickied"}, ColumnNames())
}
