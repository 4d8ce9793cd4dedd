package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pgx serialization", err: fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), want: true},
		{name: "pgx deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "pq serialization", err: &pq.Error{Code: "40001"}, want: true},
		{name: "pgx unique", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "sqlite busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: true},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable(%v) = %v want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
	if !IsUniqueViolation(pgErr, "") {
		t.Fatalf("expected pg unique violation")
	}
	if !IsUniqueViolation(pgErr, "users_email_key") {
		t.Fatalf("expected constraint match")
	}
	if IsUniqueViolation(pgErr, "other_key") {
		t.Fatalf("unexpected constraint match")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: users.email"), "") {
		t.Fatalf("expected sqlite unique violation")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatalf("nil should not match")
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	if !IsForeignKeyViolation(&pq.Error{Code: "23503"}) {
		t.Fatalf("expected pq foreign key violation")
	}
	if !IsForeignKeyViolation(errors.New("FOREIGN KEY constraint failed")) {
		t.Fatalf("expected sqlite foreign key violation")
	}
}
