package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/logsync/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

// mapError translates driver errors into the sync engine's taxonomy.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w: %w", op, common.ErrRemoteRejected, common.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w: duplicate key (%s)", op, common.ErrRemoteRejected, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w: %w", op, common.ErrRemoteRejected, common.ErrNotFound)
		case "23514", "23502": // check_violation, not_null_violation
			return fmt.Errorf("%s: %w: %s", op, common.ErrRemoteRejected, pgErr.Message)
		case "22P02": // invalid_text_representation, e.g. a malformed uuid
			return fmt.Errorf("%s: %w: %s", op, common.ErrRemoteRejected, pgErr.Message)
		}
		return fmt.Errorf("%s: %w: %s (%s)", op, common.ErrRemoteRejected, pgErr.Message, pgErr.Code)
	}

	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, common.ErrUnreachable, err)
}
