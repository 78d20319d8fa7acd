package db

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/bedboard/internal/platform/apperr"
)

// SQLSTATE codes surfaced as conflicts.
const (
	uniqueViolation      = "23505"
	checkViolation       = "23514"
	exclusionViolation   = "23P01"
	foreignKeyViolation  = "23503"
	serializationFailure = "40001"
)

// Classify maps pgx failures onto the apperr kinds. Errors that are already
// classified pass through untouched.
func Classify(err error) error {
	if err == nil || apperr.Kind(err) != nil {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.New(apperr.ErrNotFound, "record not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation, checkViolation, exclusionViolation, serializationFailure:
			return apperr.Conflict("%s (%s)", pgErr.Message, pgErr.ConstraintName)
		case foreignKeyViolation:
			return apperr.New(apperr.ErrNotFound, "referenced record not found")
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Unavailable(err)
	}
	return err
}
