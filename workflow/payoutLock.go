package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// Per-key serialization uses MySQL advisory locks. GET_LOCK is
// connection-scoped, so these must be called on the same *gorm.DB (the
// open transaction) that performs the guarded writes.

// AcquireAccountantLock serializes strike issuance/resolution per
// accountant across instances. Without it two concurrent strikes could
// both read the same rollup state and one update would be lost.
func AcquireAccountantLock(tx *gorm.DB, accountantId int) error {
	return acquireNamedLock(tx, fmt.Sprintf("accountant:%d", accountantId))
}

func ReleaseAccountantLock(tx *gorm.DB, accountantId int) {
	releaseNamedLock(tx, fmt.Sprintf("accountant:%d", accountantId))
}

// AcquirePayoutLock serializes flag updates per payout record so two
// flags set concurrently cannot both observe a stale not-yet-locked
// state.
func AcquirePayoutLock(tx *gorm.DB, payoutId int) error {
	return acquireNamedLock(tx, fmt.Sprintf("payout:%d", payoutId))
}

func ReleasePayoutLock(tx *gorm.DB, payoutId int) {
	releaseNamedLock(tx, fmt.Sprintf("payout:%d", payoutId))
}

func acquireNamedLock(tx *gorm.DB, lockName string) error {
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 10)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire lock %s", lockName)
	}
	return nil
}

func releaseNamedLock(tx *gorm.DB, lockName string) {
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
