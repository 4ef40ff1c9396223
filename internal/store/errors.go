package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// MySQL error numbers that indicate a broken constraint rather than a
// transient condition.
var mysqlConstraintErrs = map[uint16]bool{
	1048: true, // column cannot be null
	1062: true, // duplicate entry
	1451: true, // row is referenced
	1452: true, // referenced row missing
	3819: true, // check constraint violated
}

// IsConstraint reports whether err is a constraint violation. Constraint
// violations are fatal for an activity attempt; retrying cannot fix them.
func IsConstraint(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlConstraintErrs[mysqlErr.Number]
	}
	// modernc.org/sqlite reports constraint failures only through the
	// error text.
	return strings.Contains(strings.ToLower(err.Error()), "constraint")
}

// IsRetryable classifies a store error for the activity retry policy.
// Deadlocks, lock waits and connectivity blips are retryable; constraint
// violations and missing rows are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
		return false
	}
	return !IsConstraint(err)
}
