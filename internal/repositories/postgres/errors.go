package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/malistore/api/internal/repositories"
)

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// wrapError classifies pgx errors. Context cancellation passes through unchanged.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &repositories.Error{Op: op, Kind: repositories.ErrorKindNotFound, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeForeignKeyViolation, codeCheckViolation,
			codeSerializationFailure, codeDeadlockDetected:
			return repositories.NewConflict(op, err)
		}
		// class 08 is connection exceptions, 57 operator intervention such as shutdown
		if len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "57") {
			return repositories.NewUnavailable(op, err)
		}
		return &repositories.Error{Op: op, Err: err}
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) || pgconn.SafeToRetry(err) {
		return repositories.NewUnavailable(op, err)
	}
	return &repositories.Error{Op: op, Err: err}
}
