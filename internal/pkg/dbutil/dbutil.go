package dbutil

import (
	"errors"
	"strings"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// BuildInsert renders a multi-row insert with postgres placeholders and
// identifier quoting.
func BuildInsert(table string, rows []map[string]interface{}) (string, []interface{}, error) {
	query, args, err := builder.BuildInsert(table, rows)
	if err != nil {
		return "", nil, err
	}
	query = strings.ReplaceAll(query, "`", `"`)
	return sqlx.Rebind(sqlx.DOLLAR, query), args, nil
}

// Batches splits n items into [start, end) windows of at most size.
func Batches(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func IsConflict(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func IsUndefinedTable(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return false
}
