package etl

import (
	"fmt"

	"github.com/BartekS5/stageload/pkg/models"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateRecord checks the fields the Target Table relies on.
func (v *Validator) ValidateRecord(rec models.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("missing required field: %s", models.KeyColumn)
	}
	if rec.UpvoteRatio < 0 || rec.UpvoteRatio > 1 {
		return fmt.Errorf("record %s: upvote_ratio %v out of range [0,1]", rec.ID, rec.UpvoteRatio)
	}
	if rec.NumComments < 0 {
		return fmt.Errorf("record %s: negative num_comments %d", rec.ID, rec.NumComments)
	}
	if rec.CreatedUTC.IsZero() {
		return fmt.Errorf("record %s: missing created_utc", rec.ID)
	}
	return nil
}
