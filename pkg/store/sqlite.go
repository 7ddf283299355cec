package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mcclellann/airbersih/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteTable = "ledger_rows"

// SQLiteStore keeps the ledger in a single append-only SQLite table.
type SQLiteStore struct {
	db      *sql.DB
	schema  Schema
	columns []string // SQL column names in schema order
}

// NewSQLiteStore opens the database and creates the ledger table if needed.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, &ConnectivityError{Driver: "sqlite", Op: "open", Err: err}
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		db.Close()
		return nil, &ConnectivityError{Driver: "sqlite", Op: "open", Err: fmt.Errorf("failed to enable WAL mode: %w", err)}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &ConnectivityError{Driver: "sqlite", Op: "open", Err: err}
	}

	s := &SQLiteStore{db: db, schema: V1, columns: sqlColumns(V1)}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

func sqlColumns(s Schema) []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = strings.ToLower(c.Name)
	}
	return out
}

// initSchema creates the ledger table if it doesn't exist yet. Every column is TEXT
// so decimal values keep their exact representation.
func (s *SQLiteStore) initSchema() error {
	defs := make([]string, 0, len(s.columns)+1)
	defs = append(defs, "seq INTEGER PRIMARY KEY AUTOINCREMENT")
	for i, col := range s.columns {
		def := col + " TEXT"
		if i == colCustomerCode {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	schema := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n);\nCREATE INDEX IF NOT EXISTS idx_%s_customer ON %s (customer_code);",
		sqliteTable, strings.Join(defs, ",\n\t"), sqliteTable, sqliteTable)

	_, err := s.db.Exec(schema)
	return err
}

// checkColumns compares the live table against the schema descriptor.
func (s *SQLiteStore) checkColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", sqliteTable))
	if err != nil {
		return &ConnectivityError{Driver: "sqlite", Op: "read", Err: err}
	}
	defer rows.Close()

	var header []string
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return &ConnectivityError{Driver: "sqlite", Op: "read", Err: fmt.Errorf("failed to scan table info: %w", err)}
		}
		header = append(header, name)
	}
	if err := rows.Err(); err != nil {
		return &ConnectivityError{Driver: "sqlite", Op: "read", Err: err}
	}
	_, err = s.schema.Bind(header)
	return err
}

// ReadAll retrieves every ledger row in insertion order.
func (s *SQLiteStore) ReadAll(ctx context.Context) ([]models.LedgerRow, error) {
	if err := s.checkColumns(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY seq ASC", strings.Join(s.columns, ", "), sqliteTable)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &ConnectivityError{Driver: "sqlite", Op: "read", Err: fmt.Errorf("failed to get ledger rows: %w", err)}
	}
	defer rows.Close()

	// Columns come back in schema order, so the binding is the identity.
	b, err := s.schema.Bind(s.schema.Header())
	if err != nil {
		return nil, err
	}

	out := []models.LedgerRow{}
	cells := make([]sql.NullString, len(s.columns))
	dest := make([]any, len(s.columns))
	for i := range cells {
		dest[i] = &cells[i]
	}
	record := make([]string, len(s.columns))
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, &ConnectivityError{Driver: "sqlite", Op: "read", Err: fmt.Errorf("failed to scan ledger row: %w", err)}
		}
		for i, c := range cells {
			record[i] = c.String
		}
		if row, ok := b.Decode(record); ok {
			out = append(out, row)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &ConnectivityError{Driver: "sqlite", Op: "read", Err: fmt.Errorf("error during rows iteration: %w", err)}
	}
	return out, nil
}

// AppendRow inserts a row after all existing ones.
func (s *SQLiteStore) AppendRow(ctx context.Context, row models.LedgerRow) error {
	cells := EncodeRow(row)
	args := make([]any, len(cells))
	for i, c := range cells {
		args[i] = c
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cells)), ", ")

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", sqliteTable, strings.Join(s.columns, ", "), placeholders),
		args...,
	)
	if err != nil {
		return &ConnectivityError{Driver: "sqlite", Op: "append", Err: fmt.Errorf("failed to append ledger row: %w", err)}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
