package utils

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

var ErrorRecordNotFound = errors.New("record not found")

// returned when a per-key advisory lock could not be obtained in time;
// callers should treat it as transient and retry
var ErrorLockNotObtained = errors.New("lock not obtained")

// returned when a concurrent writer won a race the advisory lock should
// have prevented (e.g. duplicate strike number); transient, retry
var ErrorRetryConflict = errors.New("concurrent update conflict; retry")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// IsDuplicateEntry reports whether err is a MySQL duplicate-key error (1062),
// e.g. two concurrent writers racing on the (accountant_id, strike_number) index.
func IsDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
