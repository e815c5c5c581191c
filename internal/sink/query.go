package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DefaultQueryLimit caps the rows returned for display.
const DefaultQueryLimit = 1000

// QueryOptions selects the ordering and size of a result query.
type QueryOptions struct {
	SortColumn string
	Descending bool
	Limit      int // <= 0 means no limit
}

// DefaultQueryOptions sorts by score, highest first.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		SortColumn: ScoreColumn,
		Descending: true,
		Limit:      DefaultQueryLimit,
	}
}

// Record is one stored row. Values align with ResultSet.Columns[1:].
type Record struct {
	Key    string
	Values []int64
}

// ResultSet is the outcome of a Query.
type ResultSet struct {
	Columns []string
	Records []Record
}

// Len returns the number of records.
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Records)
}

// Value returns the value of column name in record i, or 0.
func (r *ResultSet) Value(i int, name string) int64 {
	for c, col := range r.Columns {
		if c == 0 || !strings.EqualFold(col, name) {
			continue
		}
		if c-1 < len(r.Records[i].Values) {
			return r.Records[i].Values[c-1]
		}
	}
	return 0
}

// Query returns stored rows ordered by the sort column, with ties broken by
// key ascending. An unknown sort column falls back to key order. A missing
// table yields an empty result.
func (s *Sink) Query(opts QueryOptions) (*ResultSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs := &ResultSet{}
	err := s.withRetry(func(db *sql.DB) error {
		ctx := context.Background()

		ok, err := tableExists(ctx, db)
		if err != nil || !ok {
			return err
		}
		cols, err := tableColumns(ctx, db)
		if err != nil {
			return err
		}

		rs.Columns = cols
		rs.Records = nil
		return queryRecords(ctx, db, rs, opts)
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func queryRecords(ctx context.Context, db *sql.DB, rs *ResultSet, opts QueryOptions) error {
	quoted := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		quoted[i] = quoteIdent(c)
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(quoted, ","), tableName, orderClause(rs.Columns, opts))
	var args []any
	if opts.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		vals := make([]int64, len(rs.Columns)-1)
		dest := make([]any, len(rs.Columns))
		dest[0] = &key
		for i := range vals {
			dest[i+1] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scanning result: %w", err)
		}
		rs.Records = append(rs.Records, Record{Key: key, Values: vals})
	}
	return rows.Err()
}

func orderClause(columns []string, opts QueryOptions) string {
	keyOrder := quoteIdent(KeyColumn) + " ASC"
	if opts.SortColumn == "" || strings.EqualFold(opts.SortColumn, KeyColumn) {
		if opts.Descending && strings.EqualFold(opts.SortColumn, KeyColumn) {
			return quoteIdent(KeyColumn) + " DESC"
		}
		return keyOrder
	}
	for _, c := range columns {
		if strings.EqualFold(c, opts.SortColumn) {
			dir := "ASC"
			if opts.Descending {
				dir = "DESC"
			}
			return fmt.Sprintf("%s %s, %s", quoteIdent(c), dir, keyOrder)
		}
	}
	return keyOrder
}
