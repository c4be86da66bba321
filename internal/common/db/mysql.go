package db

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

// NewMySQL opens a MySQL pool.
// DSN format: "user:password@tcp(host:port)/dbname?parseTime=true&loc=UTC"
func NewMySQL(cfg Config) (Database, error) {
	pool, err := openPool("mysql", cfg)
	if err != nil {
		return nil, err
	}
	return &sqlDatabase{db: pool, dialect: DialectMySQL}, nil
}

func mysqlUniqueViolation(err error) (string, bool) {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return ExtractDuplicateKeyName(myErr.Message), true
	}
	return "", false
}

// ExtractDuplicateKeyName parses duplicate key name from MySQL error message.
func ExtractDuplicateKeyName(message string) string {
	if message == "" {
		return ""
	}
	const marker = "for key "
	idx := strings.LastIndex(message, marker)
	if idx == -1 {
		return ""
	}
	key := strings.TrimSpace(message[idx+len(marker):])
	return strings.Trim(key, " `\"'")
}
