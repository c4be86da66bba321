package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

func TestRebind(t *testing.T) {
	cases := []struct {
		dialect Dialect
		in      string
		want    string
	}{
		{DialectMySQL, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{DialectPostgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{DialectPostgres, "SELECT '?' FROM t WHERE a = ?", "SELECT '?' FROM t WHERE a = $1"},
		{DialectPostgres, "SELECT 1", "SELECT 1"},
	}
	for _, tc := range cases {
		if got := Rebind(tc.dialect, tc.in); got != tc.want {
			t.Fatalf("Rebind(%s, %q) = %q, want %q", tc.dialect, tc.in, got, tc.want)
		}
	}
}

func TestUniqueViolation(t *testing.T) {
	myErr := fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'submissions.PRIMARY'"})
	if key, ok := UniqueViolation(myErr); !ok || key != "submissions.PRIMARY" {
		t.Fatalf("mysql = %q %v", key, ok)
	}
	pgErr := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "submissions_pkey"})
	if key, ok := UniqueViolation(pgErr); !ok || key != "submissions_pkey" {
		t.Fatalf("postgres = %q %v", key, ok)
	}
	if _, ok := UniqueViolation(errors.New("other")); ok {
		t.Fatalf("plain error reported as unique violation")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "sqlite", DSN: "x"}); err == nil {
		t.Fatalf("expected error")
	}
}
