package db

import (
	"errors"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation.
// When names are provided the violation must reference one of them, matched
// against the Postgres constraint name or the driver message.
func IsUniqueViolation(err error, names ...string) bool {
	if err == nil {
		return false
	}
	filter := make([]string, 0, len(names))
	for _, name := range names {
		if name != "" {
			filter = append(filter, name)
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		return len(filter) == 0 || slices.Contains(filter, pgErr.ConstraintName)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) && len(filter) == 0 {
		return true
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	if len(filter) == 0 {
		return true
	}
	for _, name := range filter {
		if strings.Contains(msg, name) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is gorm's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
