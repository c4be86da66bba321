package db

import "context"

// Dialect names the SQL flavour behind a Database.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// Database is a pooled SQL connection. Queries use '?' placeholders and are
// rebound to the dialect's syntax before execution.
type Database interface {
	Querier

	// Transaction runs fn inside a transaction, rolling back if fn fails
	Transaction(ctx context.Context, fn func(tx Transaction) error) error

	// Dialect reports the SQL flavour
	Dialect() Dialect

	// Ping verifies a connection to the database is still alive
	Ping(ctx context.Context) error

	// Close closes the database connection pool
	Close() error
}

// Transaction is a database transaction.
type Transaction interface {
	Querier
	Commit() error
	Rollback() error
}

// Rows is the result of a query.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is the result of a single-row query.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an executed statement.
type Result interface {
	RowsAffected() (int64, error)
}

// Scanner is implemented by Row and Rows.
type Scanner interface {
	Scan(dest ...interface{}) error
}
