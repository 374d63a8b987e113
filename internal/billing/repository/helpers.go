package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// querier is implemented by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Scanner is an interface implemented by both sql.Row and sql.Rows.
type Scanner interface {
	Scan(dest ...interface{}) error
}

// nullableString returns a sql.NullString for a string value.
// Empty strings result in a NULL database value.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableUUID returns a sql.NullString for a UUID-based ID.
func nullableUUID[T ~[16]byte](id *T) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: uuid.UUID(*id).String(), Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// boolToInt converts a boolean to an int for Oracle NUMBER(1) storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseUUID parses a string to uuid.UUID with a descriptive error.
func parseUUID(s, fieldName string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("parse %s %q: %w", fieldName, s, err)
	}
	return id, nil
}

// parseNullableUUID parses an optional UUID column into a typed pointer.
func parseNullableUUID[T ~[16]byte](ns sql.NullString, fieldName string) (*T, error) {
	if !ns.Valid {
		return nil, nil
	}
	id, err := parseUUID(ns.String, fieldName)
	if err != nil {
		return nil, err
	}
	typed := T(id)
	return &typed, nil
}

// parseDecimal parses a NUMBER column read as text.
func parseDecimal(s, fieldName string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", fieldName, s, err)
	}
	return d, nil
}

// stringFromNull extracts string from sql.NullString.
func stringFromNull(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// timeFromNull extracts *time.Time from sql.NullTime.
func timeFromNull(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// bindList renders ":start, :start+1, ..." for n positional binds.
func bindList(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(":%d", start+i)
	}
	return strings.Join(parts, ", ")
}
