package catalog

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// parsedTable is a fully read CSV file waiting to be written.
type parsedTable struct {
	info TableInfo
	rows [][]any
}

// parseFile reads a whole CSV file and infers its column types.
func parseFile(ctx context.Context, path string) (parsedTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return parsedTable{}, &IngestionError{File: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return parsedTable{}, &IngestionError{File: path, Err: errors.New("file has no header row")}
	}
	if err != nil {
		return parsedTable{}, &IngestionError{File: path, Err: err}
	}
	cols, err := headerColumns(header)
	if err != nil {
		return parsedTable{}, &IngestionError{File: path, Err: err}
	}

	var records [][]string
	for {
		if err := ctx.Err(); err != nil {
			return parsedTable{}, err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return parsedTable{}, &IngestionError{File: path, Err: err}
		}
		records = append(records, rec)
	}

	for i := range cols {
		cols[i].Type = inferType(records, i)
	}
	rows := make([][]any, len(records))
	for n, rec := range records {
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = convert(rec[i], c.Type)
		}
		rows[n] = row
	}

	return parsedTable{
		info: TableInfo{
			Name:       TableName(path),
			SourceFile: path,
			Columns:    cols,
			RowCount:   len(rows),
		},
		rows: rows,
	}, nil
}

func headerColumns(header []string) ([]Column, error) {
	seen := make(map[string]bool, len(header))
	cols := make([]Column, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		name := strings.TrimSpace(h)
		if name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i+1)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, fmt.Errorf("duplicate column name %q", name)
		}
		seen[key] = true
		cols[i] = Column{Name: name}
	}
	return cols, nil
}

// inferType picks INTEGER, REAL or TEXT from the non-empty values of column i.
func inferType(records [][]string, i int) string {
	isInt, isReal, seen := true, true, false
	for _, rec := range records {
		v := strings.TrimSpace(rec[i])
		if v == "" {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if !isInt {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isReal = false
				break
			}
		}
	}
	switch {
	case !seen:
		return TypeText
	case isInt:
		return TypeInteger
	case isReal:
		return TypeReal
	default:
		return TypeText
	}
}

func convert(raw, typ string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	switch typ {
	case TypeInteger:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case TypeReal:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return raw
	}
}

// writeTables replaces every parsed table and drops stale ones in a single transaction.
func writeTables(ctx context.Context, db *sql.DB, tables []parsedTable, stale []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &IngestionError{Err: fmt.Errorf("begin transaction: %w", err)}
	}
	defer tx.Rollback()

	for _, name := range stale {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+QuoteIdent(name)); err != nil {
			return &IngestionError{Err: fmt.Errorf("drop stale table %s: %w", name, err)}
		}
	}
	for _, t := range tables {
		if err := writeTable(ctx, tx, t); err != nil {
			return &IngestionError{File: t.info.SourceFile, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &IngestionError{Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

func writeTable(ctx context.Context, tx *sql.Tx, t parsedTable) error {
	name := QuoteIdent(t.info.Name)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}

	defs := make([]string, len(t.info.Columns))
	cols := make([]string, len(t.info.Columns))
	marks := make([]string, len(t.info.Columns))
	for i, c := range t.info.Columns {
		cols[i] = QuoteIdent(c.Name)
		defs[i] = cols[i] + " " + c.Type
		marks[i] = "?"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	if len(t.rows) == 0 {
		return nil
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", name, strings.Join(cols, ", "), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for i, row := range t.rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}
	return nil
}
