package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"possync/internal/domain/sync"
)

const uniqueViolation = "23505"

// classify переводит ошибки PostgreSQL в ошибки домена синхронизации.
// Ошибки данных (22), ограничений (23) и несоответствия схемы (42) относятся
// к одному оператору и не должны прерывать весь пакет.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return sync.ErrRowNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	if pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", sync.ErrDuplicateKey, pgErr.ConstraintName)
	}

	if len(pgErr.Code) < 2 {
		return err
	}
	switch pgErr.Code[:2] {
	case "22", "23", "42":
		return fmt.Errorf("%w: %s (SQLSTATE %s)", sync.ErrRecordRejected, pgErr.Message, pgErr.Code)
	}
	return err
}
