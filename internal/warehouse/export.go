package warehouse

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/BartekS5/stageload/pkg/models"
	"github.com/BartekS5/stageload/pkg/utils"
)

// Export writes every row of table to w as CSV with a header row, ordered by
// id. It returns the number of data rows written.
func Export(ctx context.Context, c Connector, d Dialect, table string, w io.Writer) (int, error) {
	ident, err := ParseIdent(table)
	if err != nil {
		return 0, &InvalidInputError{Field: "table name", Value: table, Err: err}
	}

	session, err := c.Conn(ctx)
	if err != nil {
		return 0, &ConnectionError{Engine: d.Name(), Err: err}
	}
	defer session.Close()

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", d.QuoteIdent(ident), d.QuoteIdent(Ident{parts: []string{models.KeyColumn}}))
	rows, err := session.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", ident, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}

	out := csv.NewWriter(w)
	if err := out.Write(cols); err != nil {
		return 0, err
	}

	vals := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	record := make([]string, len(cols))

	n := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return n, fmt.Errorf("scan row %d: %w", n+1, err)
		}
		for i, v := range vals {
			record[i] = utils.FormatValue(v)
		}
		if err := out.Write(record); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}

	out.Flush()
	return n, out.Error()
}
