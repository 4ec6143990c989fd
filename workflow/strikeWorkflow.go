package workflow

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/dispatchbooks/agents_backend/config"
	"github.com/dispatchbooks/agents_backend/models"
	"github.com/dispatchbooks/agents_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultMismatchPenalty is the penalty issued for a failed three-way
// match, in Naira. Overridable via STRIKE_PENALTY_DEFAULT.
func DefaultMismatchPenalty() decimal.Decimal {
	v := strings.TrimSpace(os.Getenv("STRIKE_PENALTY_DEFAULT"))
	if v != "" {
		if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
			return d
		}
	}
	return decimal.NewFromInt(20000)
}

// SuspendLimit is the strike count at which an accountant is suspended.
func SuspendLimit() int {
	return config.IntFromEnv("STRIKE_SUSPEND_LIMIT", 5)
}

type ResolveResult struct {
	Ok     bool                `json:"ok"`
	Reason string              `json:"reason,omitempty"`
	Status models.StrikeStatus `json:"status"`
}

// AddStrike issues a strike in its own transaction, serialized per
// accountant.
func AddStrike(ctx context.Context, logger *logrus.Logger, input *models.NewStrike, now time.Time) (*models.Strike, error) {
	violationType, err := input.Validate(ctx)
	if err != nil {
		return nil, err
	}

	penalty := input.PenaltyAmount
	if penalty.IsZero() {
		penalty = DefaultMismatchPenalty()
	}

	db := config.GetDB()
	var strike *models.Strike
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if lockErr := AcquireAccountantLock(tx, input.AccountantId); lockErr != nil {
			return utils.ErrorLockNotObtained
		}
		defer ReleaseAccountantLock(tx, input.AccountantId)

		var txErr error
		strike, txErr = addStrikeTx(tx, logger, input.AccountantId, violationType, input.Description, penalty, input.OrderId, input.Evidence, now)
		return txErr
	})
	if err != nil {
		config.LogError(logger, "strikeWorkflow.go", "AddStrike", "Transaction", input, err)
		return nil, err
	}
	return strike, nil
}

// addStrikeTx appends one ledger row and maintains the accountant
// rollups inside the caller's transaction. The caller must hold the
// accountant advisory lock.
func addStrikeTx(tx *gorm.DB, logger *logrus.Logger, accountantId int, violationType models.ViolationType,
	description string, penalty decimal.Decimal, orderId *int, evidence string, now time.Time) (*models.Strike, error) {

	var accountant models.Accountant
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&accountant, accountantId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	// Strike numbers are monotonic per accountant even after
	// resolutions, so the next number comes from the ledger, not the
	// (decrementable) rollup counter.
	var maxNumber int
	if err := tx.Model(&models.Strike{}).
		Where("accountant_id = ?", accountantId).
		Select("COALESCE(MAX(strike_number), 0)").
		Scan(&maxNumber).Error; err != nil {
		return nil, err
	}

	strike := models.Strike{
		AccountantId:  accountantId,
		StrikeNumber:  maxNumber + 1,
		ViolationType: violationType,
		Description:   description,
		PenaltyAmount: penalty,
		OrderId:       orderId,
		Evidence:      evidence,
		Status:        models.StrikeStatusActive,
		IssuedDate:    now,
	}
	if err := tx.Create(&strike).Error; err != nil {
		if utils.IsDuplicateEntry(err) {
			return nil, utils.ErrorRetryConflict
		}
		return nil, err
	}

	accountant.ApplyStrike(penalty, SuspendLimit(), now)
	if err := tx.Model(&models.Accountant{}).Where("id = ?", accountantId).
		Updates(map[string]interface{}{
			"current_strikes": accountant.CurrentStrikes,
			"total_penalties": accountant.TotalPenalties,
			"status":          accountant.Status,
			"suspended_at":    accountant.SuspendedAt,
		}).Error; err != nil {
		return nil, err
	}

	if accountant.IsSuspended() {
		logger.WithFields(logrus.Fields{
			"module":          "strikeWorkflow.go",
			"accountant_id":   accountantId,
			"current_strikes": accountant.CurrentStrikes,
		}).Info("accountant suspended by strike threshold")
	}

	return &strike, nil
}

// ResolveStrike closes an active strike and reverses its rollup,
// serialized by the same per-accountant lock as issuance. Resolving a
// non-active strike is a no-op failure result, not an error.
func ResolveStrike(ctx context.Context, logger *logrus.Logger, strikeId int, now time.Time) (*ResolveResult, error) {
	db := config.GetDB()
	result := &ResolveResult{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var strike models.Strike
		if err := tx.First(&strike, strikeId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}

		if lockErr := AcquireAccountantLock(tx, strike.AccountantId); lockErr != nil {
			return utils.ErrorLockNotObtained
		}
		defer ReleaseAccountantLock(tx, strike.AccountantId)

		// re-read under the lock; another resolver may have won
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&strike, strikeId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}

		if !strike.Resolve(now) {
			result.Ok = false
			result.Reason = "strike is not active"
			result.Status = strike.Status
			return nil
		}

		if err := tx.Model(&models.Strike{}).Where("id = ?", strike.ID).
			Updates(map[string]interface{}{
				"status":      strike.Status,
				"resolved_at": strike.ResolvedAt,
			}).Error; err != nil {
			return err
		}

		var accountant models.Accountant
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&accountant, strike.AccountantId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		accountant.ReleaseStrike(strike.PenaltyAmount)
		if err := tx.Model(&models.Accountant{}).Where("id = ?", accountant.ID).
			Updates(map[string]interface{}{
				"current_strikes": accountant.CurrentStrikes,
				"total_penalties": accountant.TotalPenalties,
			}).Error; err != nil {
			return err
		}

		result.Ok = true
		result.Status = strike.Status
		return nil
	})
	if err != nil {
		config.LogError(logger, "strikeWorkflow.go", "ResolveStrike", "Transaction", strikeId, err)
		return nil, err
	}
	return result, nil
}
