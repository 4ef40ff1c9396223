package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"not found", ErrNotFound, false},
		{"wrapped not found", fmt.Errorf("get order: %w", ErrNotFound), false},
		{"deadlock", &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, true},
		{"lock wait timeout", &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout"}, true},
		{"duplicate key", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, false},
		{"null violation", &mysql.MySQLError{Number: 1048, Message: "Column cannot be null"}, false},
		{"check violation", &mysql.MySQLError{Number: 3819, Message: "Check constraint violated"}, false},
		{"sqlite constraint", errors.New("constraint failed: UNIQUE constraint failed: payments.payment_id"), false},
		{"connectivity", errors.New("dial tcp: connection refused"), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.retryable, IsRetryable(tc.err))
		})
	}
}
