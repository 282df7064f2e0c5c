// Package models holds the record shape shared by the extractor, the stage
// file codec and the warehouse loader.
package models

import "time"

// Record is one content item as it lands in the Target Table.
type Record struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	NumComments int       `json:"num_comments"`
	Score       int       `json:"score"`
	Author      *string   `json:"author"`
	CreatedUTC  time.Time `json:"created_utc"`
	URL         string    `json:"url"`
	UpvoteRatio float64   `json:"upvote_ratio"`
	Over18      bool      `json:"over_18"`
	Edited      bool      `json:"edited"`
	Spoiler     bool      `json:"spoiler"`
	Stickied    bool      `json:"stickied"`
}

// ColumnType is an engine-neutral column type. Dialects map it to DDL.
type ColumnType int

const (
	TypeKey ColumnType = iota
	TypeText
	TypeInteger
	TypeTimestamp
	TypeFloat
	TypeBoolean
)

// Column describes one Target Table column.
type Column struct {
	Name string
	Type ColumnType
}

// KeyColumn is the natural primary key of the Target Table.
const KeyColumn = "id"

// Columns is the fixed Target Table layout. The stage file header and every
// bulk copy rely on this order.
var Columns = []Column{
	{Name: "id", Type: TypeKey},
	{Name: "title", Type: TypeText},
	{Name: "num_comments", Type: TypeInteger},
	{Name: "score", Type: TypeInteger},
	{Name: "author", Type: TypeText},
	{Name: "created_utc", Type: TypeTimestamp},
	{Name: "url", Type: TypeText},
	{Name: "upvote_ratio", Type: TypeFloat},
	{Name: "over_18", Type: TypeBoolean},
	{Name: "edited", Type: TypeBoolean},
	{Name: "spoiler", Type: TypeBoolean},
	{Name: "stickied", Type: TypeBoolean},
}

// ColumnNames returns the Target Table column names in order.
func ColumnNames() []string {
	names := make([]string, len(Columns))
	for i, c := range Columns {
		names[i] = c.Name
	}
	return names
}

// Dedupe drops records whose id was already seen, keeping the first one.
func Dedupe(records []Record) []Record {
	seen := make(map[string]struct{}, len(records))
	out := records[:0:0]
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
