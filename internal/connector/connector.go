// Package connector implements the narrow Connector Interface (spec §4.4):
// running a compiled SQL string against a named database and returning
// columnar batches persisted to a temporary Arrow IPC file.
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow/go/arrow"
	"github.com/apache/arrow/go/arrow/array"
	"github.com/apache/arrow/go/arrow/ipc"
	"github.com/apache/arrow/go/arrow/memory"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/oxyerr"
)

// Connector is the single capability the execution core depends on,
// matching spec §4.4 verbatim: run a compiled SQL string and load the
// result, or dry-run it (parse/plan only, no rows materialized).
type Connector interface {
	RunQueryAndLoad(ctx context.Context, databaseRef, sql string) (ctxtree.TableRef, error)
	DryRun(ctx context.Context, databaseRef, sql string) error
}

// Dialect names the SQL dialect a Connector speaks, used only for
// DatabaseError reporting and dry-run statement shaping.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// SQLConnector is a Connector backed by database/sql, usable with any
// driver registered under the database/sql name matching its Dialect.
// Results are executed verbatim after rendering — spec §4.4 is explicit
// that there is no second-level parameter binding at this layer; semantic
// queries substitute their own parameters before handing off.
type SQLConnector struct {
	db      *sql.DB
	dialect Dialect
	tmpDir  string
}

// OpenPostgres opens a Connector against a Postgres DSN using lib/pq.
func OpenPostgres(dsn string, tmpDir string) (*SQLConnector, error) {
	return open(DialectPostgres, "postgres", dsn, tmpDir)
}

// OpenSQLite opens a Connector against a SQLite file path using
// mattn/go-sqlite3.
func OpenSQLite(path string, tmpDir string) (*SQLConnector, error) {
	return open(DialectSQLite, "sqlite3", path, tmpDir)
}

func open(dialect Dialect, driverName, dsn, tmpDir string) (*SQLConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, &oxyerr.DatabaseError{Dialect: string(dialect), Message: err.Error()}
	}
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &SQLConnector{db: db, dialect: dialect, tmpDir: tmpDir}, nil
}

// Close releases the underlying connection pool.
func (c *SQLConnector) Close() error { return c.db.Close() }

// RunQueryAndLoad executes sql against databaseRef, persists the result as
// columnar batches to a temporary Arrow IPC file, and returns a TableRef
// pointing at it. databaseRef is carried through for diagnostics only;
// routing to the right physical database is the caller's responsibility
// (one SQLConnector per configured database).
func (c *SQLConnector) RunQueryAndLoad(ctx context.Context, databaseRef, query string) (ctxtree.TableRef, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return ctxtree.TableRef{}, &oxyerr.DatabaseError{Dialect: string(c.dialect), Message: err.Error()}
	}
	defer rows.Close()

	schema, err := arrowSchema(rows)
	if err != nil {
		return ctxtree.TableRef{}, &oxyerr.DatabaseError{Dialect: string(c.dialect), Message: err.Error()}
	}

	record, err := buildRecord(rows, schema)
	if err != nil {
		return ctxtree.TableRef{}, &oxyerr.DatabaseError{Dialect: string(c.dialect), Message: err.Error()}
	}
	defer record.Release()

	path := filepath.Join(c.tmpDir, uuid.NewString()+".arrow")
	if err := writeIPCFile(path, schema, record); err != nil {
		return ctxtree.TableRef{}, &oxyerr.DatabaseError{Dialect: string(c.dialect), Message: err.Error()}
	}

	return ctxtree.TableRef{
		FilePath:    path,
		SQL:         query,
		DatabaseRef: databaseRef,
		RowCount:    record.NumRows(),
	}, nil
}

// DryRun parses/plans query without materializing rows, by wrapping it in
// a zero-row outer select. Failures (syntax errors, unknown columns) map
// to DatabaseError exactly as RunQueryAndLoad does.
func (c *SQLConnector) DryRun(ctx context.Context, databaseRef, query string) error {
	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS oxy_dry_run WHERE 1 = 0", query)
	rows, err := c.db.QueryContext(ctx, wrapped)
	if err != nil {
		return &oxyerr.DatabaseError{Dialect: string(c.dialect), Message: err.Error()}
	}
	return rows.Close()
}

func arrowSchema(rows *sql.Rows) (*arrow.Schema, error) {
	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	fields := make([]arrow.Field, len(cols))
	for i, col := range cols {
		fields[i] = arrow.Field{Name: col.Name(), Type: arrowTypeFor(col), Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

func arrowTypeFor(col *sql.ColumnType) arrow.DataType {
	switch col.ScanType() {
	case nil:
		return arrow.BinaryTypes.String
	default:
	}
	switch col.DatabaseTypeName() {
	case "INT4", "INT8", "INTEGER", "BIGINT", "SMALLINT":
		return arrow.PrimitiveTypes.Int64
	case "FLOAT4", "FLOAT8", "NUMERIC", "DECIMAL", "REAL", "DOUBLE":
		return arrow.PrimitiveTypes.Float64
	case "BOOL", "BOOLEAN":
		return arrow.FixedWidthTypes.Boolean
	case "TIMESTAMP", "TIMESTAMPTZ", "DATE", "DATETIME":
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}

// buildRecord scans every row into a generic []any slice, then appends
// into a type-appropriate arrow builder per column. Unsupported/NULL
// values fall back to the column's null representation.
func buildRecord(rows *sql.Rows, schema *arrow.Schema) (arrow.Record, error) {
	pool := memory.NewGoAllocator()
	bldr := array.NewRecordBuilder(pool, schema)
	defer bldr.Release()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, field := range schema.Fields() {
			appendValue(bldr.Field(i), field.Type, raw[i])
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bldr.NewRecord(), nil
}

func appendValue(b array.Builder, t arrow.DataType, v any) {
	if v == nil {
		b.AppendNull()
		return
	}
	switch t.ID() {
	case arrow.INT64:
		fb := b.(*array.Int64Builder)
		switch n := v.(type) {
		case int64:
			fb.Append(n)
		case int:
			fb.Append(int64(n))
		case float64:
			fb.Append(int64(n))
		default:
			fb.AppendNull()
		}
	case arrow.FLOAT64:
		fb := b.(*array.Float64Builder)
		switch n := v.(type) {
		case float64:
			fb.Append(n)
		case int64:
			fb.Append(float64(n))
		default:
			fb.AppendNull()
		}
	case arrow.BOOL:
		fb := b.(*array.BooleanBuilder)
		if n, ok := v.(bool); ok {
			fb.Append(n)
		} else {
			fb.AppendNull()
		}
	case arrow.TIMESTAMP:
		fb := b.(*array.TimestampBuilder)
		if tm, ok := v.(time.Time); ok {
			fb.Append(arrow.Timestamp(tm.UnixMicro()))
		} else {
			fb.AppendNull()
		}
	default:
		fb := b.(*array.StringBuilder)
		fb.Append(fmt.Sprintf("%v", v))
	}
}

// ReadSample opens an Arrow IPC file written by RunQueryAndLoad and
// decodes up to limit rows for display purposes, reporting whether more
// rows exist beyond that cap. The file on disk always holds the complete
// result; this is a bounded read for callers (like the semantic-query
// compiler) that only need a preview.
func ReadSample(path string, limit int) (columns []string, rows [][]any, truncated bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, false, err
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, nil, false, err
	}
	defer r.Close()

	for _, field := range r.Schema().Fields() {
		columns = append(columns, field.Name)
	}

	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, nil, false, err
		}
		nRows := int(rec.NumRows())
		for row := 0; row < nRows; row++ {
			if len(rows) >= limit {
				return columns, rows, true, nil
			}
			rows = append(rows, extractRow(rec, row))
		}
	}
	return columns, rows, false, nil
}

func extractRow(rec arrow.Record, row int) []any {
	out := make([]any, rec.NumCols())
	for col := 0; col < int(rec.NumCols()); col++ {
		out[col] = extractCell(rec.Column(col), row)
	}
	return out
}

func extractCell(col arrow.Array, row int) any {
	if col.IsNull(row) {
		return nil
	}
	switch c := col.(type) {
	case *array.Int64:
		return c.Value(row)
	case *array.Float64:
		return c.Value(row)
	case *array.Boolean:
		return c.Value(row)
	case *array.Timestamp:
		return c.Value(row).ToTime(arrow.Microsecond)
	case *array.String:
		return c.Value(row)
	default:
		return nil
	}
}

func writeIPCFile(path string, schema *arrow.Schema, record arrow.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema))
	if err != nil {
		return err
	}
	if err := w.Write(record); err != nil {
		return err
	}
	return w.Close()
}
