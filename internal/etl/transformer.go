package etl

import (
	"fmt"
	"strings"

	"github.com/BartekS5/stageload/pkg/models"
	"github.com/BartekS5/stageload/pkg/utils"
)

// Transformer normalizes a raw API post into a Record.
type Transformer struct{}

func NewTransformer() *Transformer {
	return &Transformer{}
}

func (t *Transformer) Transform(raw map[string]interface{}) (models.Record, error) {
	var rec models.Record

	id, _ := raw["id"].(string)
	if id == "" {
		return rec, fmt.Errorf("post without id")
	}
	rec.ID = id
	rec.Title, _ = raw["title"].(string)
	rec.URL, _ = raw["url"].(string)

	var err error
	if rec.Score, err = intField(raw, "score"); err != nil {
		return rec, err
	}
	if rec.NumComments, err = intField(raw, "num_comments"); err != nil {
		return rec, err
	}

	if a, ok := raw["author"].(string); ok && a != "" && a != "[deleted]" {
		rec.Author = &a
	}

	created, ok := raw["created_utc"].(float64)
	if !ok {
		return rec, fmt.Errorf("post %s: created_utc is %T, want number", id, raw["created_utc"])
	}
	rec.CreatedUTC = utils.EpochToUTC(created)

	if ratio, ok := raw["upvote_ratio"].(float64); ok {
		rec.UpvoteRatio = ratio
	}

	flags := []struct {
		name string
		dst  *bool
	}{
		{"over_18", &rec.Over18},
		{"edited", &rec.Edited},
		{"spoiler", &rec.Spoiler},
		{"stickied", &rec.Stickied},
	}
	for _, f := range flags {
		v, err := utils.ConvertToBool(raw[f.name])
		if err != nil {
			return rec, fmt.Errorf("post %s: field %s: %w", id, f.name, err)
		}
		*f.dst = v
	}

	rec.Title = strings.TrimSpace(rec.Title)
	return rec, nil
}

func intField(raw map[string]interface{}, name string) (int, error) {
	v, ok := raw[name]
	if !ok || v == nil {
		return 0, nil
	}
	n, err := utils.ConvertToInt(v)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", name, err)
	}
	return n, nil
}
