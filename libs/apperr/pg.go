package apperr

import (
	"errors"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	PgUniqueViolation    = "23505"
	PgExclusionViolation = "23P01"
	PgCheckViolation     = "23514"
	PgNotNullViolation   = "23502"
	PgForeignKey         = "23503"
	PgUndefinedColumn    = "42703"
	PgInvalidText        = "22P02"
)

// PgCode returns the SQLSTATE of a Postgres error, or "".
func PgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

var undefinedColumnRe = regexp.MustCompile(`column "([^"]+)"`)

// UndefinedColumn reports the column named by a 42703 error.
func UndefinedColumn(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != PgUndefinedColumn {
		return "", false
	}
	if m := undefinedColumnRe.FindStringSubmatch(pgErr.Message); len(m) == 2 {
		return m[1], true
	}
	return "", true
}

// FromDB maps storage errors onto the HTTP taxonomy. Errors that are already
// *Error pass through untouched.
func FromDB(err error, what string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFound(what + " not found")
	}
	switch PgCode(err) {
	case PgUniqueViolation:
		return Wrap(err, 409, "conflict", what+" already exists")
	case PgExclusionViolation:
		return Wrap(err, 409, "conflict", what+" conflicts with an existing entry")
	case PgCheckViolation, PgNotNullViolation, PgInvalidText:
		return Wrap(err, 400, "bad_request", "invalid "+what)
	case PgForeignKey:
		return Wrap(err, 400, "bad_request", what+" references a missing record")
	}
	return Internal(err)
}
