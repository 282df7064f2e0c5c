package etl

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/BartekS5/stageload/pkg/models"
	"github.com/BartekS5/stageload/pkg/utils"
)

// WriteCSV writes the stage file: a header row in Target Table column order,
// then one row per record. A NULL author is an empty field.
func WriteCSV(w io.Writer, records []models.Record) error {
	out := csv.NewWriter(w)
	if err := out.Write(models.ColumnNames()); err != nil {
		return err
	}
	for _, r := range records {
		author := ""
		if r.Author != nil {
			author = *r.Author
		}
		row := []string{
			r.ID,
			r.Title,
			strconv.Itoa(r.NumComments),
			strconv.Itoa(r.Score),
			author,
			r.CreatedUTC.UTC().Format(utils.TimestampLayout),
			r.URL,
			strconv.FormatFloat(r.UpvoteRatio, 'f', -1, 64),
			strconv.FormatBool(r.Over18),
			strconv.FormatBool(r.Edited),
			strconv.FormatBool(r.Spoiler),
			strconv.FormatBool(r.Stickied),
		}
		if err := out.Write(row); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

// ReadCSV parses a stage file written by WriteCSV.
func ReadCSV(r io.Reader) ([]models.Record, error) {
	in := csv.NewReader(r)
	in.FieldsPerRecord = len(models.Columns)

	header, err := in.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("stage file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !slices.Equal(header, models.ColumnNames()) {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var records []models.Record
	for line := 2; ; line++ {
		row, err := in.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
}

func parseRow(row []string) (models.Record, error) {
	var (
		rec models.Record
		err error
	)
	rec.ID, rec.Title, rec.URL = row[0], row[1], row[6]
	if rec.NumComments, err = strconv.Atoi(row[2]); err != nil {
		return rec, fmt.Errorf("num_comments: %w", err)
	}
	if rec.Score, err = strconv.Atoi(row[3]); err != nil {
		return rec, fmt.Errorf("score: %w", err)
	}
	if row[4] != "" {
		a := row[4]
		rec.Author = &a
	}
	if rec.CreatedUTC, err = time.Parse(utils.TimestampLayout, row[5]); err != nil {
		return rec, fmt.Errorf("created_utc: %w", err)
	}
	if rec.UpvoteRatio, err = strconv.ParseFloat(row[7], 64); err != nil {
		return rec, fmt.Errorf("upvote_ratio: %w", err)
	}
	for i, dst := range []*bool{&rec.Over18, &rec.Edited, &rec.Spoiler, &rec.Stickied} {
		if *dst, err = strconv.ParseBool(row[8+i]); err != nil {
			return rec, fmt.Errorf("%s: %w", models.Columns[8+i].Name, err)
		}
	}
	return rec, nil
}
