package db

import (
	"errors"

	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

// NewPostgreSQL opens a PostgreSQL pool.
// DSN format: "user=postgres password=password host=localhost port=5432 dbname=dbname sslmode=disable"
func NewPostgreSQL(cfg Config) (Database, error) {
	pool, err := openPool("postgres", cfg)
	if err != nil {
		return nil, err
	}
	return &sqlDatabase{db: pool, dialect: DialectPostgres}, nil
}

func postgresUniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}
