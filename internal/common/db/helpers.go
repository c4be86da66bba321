package db

import (
	"context"
	"database/sql"
	"errors"
)

// Querier abstracts database operations for both database and transaction.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// GetQuerier returns transaction if provided, otherwise uses the database.
func GetQuerier(database Database, tx Transaction) Querier {
	if tx != nil {
		return tx
	}
	return database
}

// IsNoRows checks if the error is sql.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// UniqueViolation reports a duplicate-key error from either driver and
// returns the violated key or constraint name.
func UniqueViolation(err error) (string, bool) {
	if key, ok := mysqlUniqueViolation(err); ok {
		return key, true
	}
	return postgresUniqueViolation(err)
}

// ApplySchema executes idempotent DDL statements in order.
func ApplySchema(ctx context.Context, database Database, statements []string) error {
	for _, stmt := range statements {
		if _, err := database.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
