package workflow

import (
	"context"

	"github.com/dispatchbooks/agents_backend/config"
	"github.com/dispatchbooks/agents_backend/models"
	"github.com/dispatchbooks/agents_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RollupDrift is one accountant whose denormalized rollups disagree with
// the strike ledger.
type RollupDrift struct {
	AccountantId      int             `json:"accountant_id"`
	RecordedStrikes   int             `json:"recorded_strikes"`
	LedgerStrikes     int             `json:"ledger_strikes"`
	RecordedPenalties decimal.Decimal `json:"recorded_penalties"`
	LedgerPenalties   decimal.Decimal `json:"ledger_penalties"`
}

// CheckAccountantRollups compares every accountant's rollup counters
// against the aggregate of their active strikes. An empty result means
// the denormalization is consistent.
func CheckAccountantRollups(ctx context.Context) ([]RollupDrift, error) {
	sql := `
SELECT
    accountants.id AS accountant_id,
    accountants.current_strikes AS recorded_strikes,
    COALESCE(ledger.strike_count, 0) AS ledger_strikes,
    accountants.total_penalties AS recorded_penalties,
    COALESCE(ledger.penalty_total, 0) AS ledger_penalties
FROM
    accountants
    LEFT JOIN (
        SELECT
            accountant_id,
            COUNT(id) AS strike_count,
            SUM(penalty_amount) AS penalty_total
        FROM
            strikes
        WHERE
            status = 'active'
        GROUP BY
            accountant_id
    ) AS ledger ON ledger.accountant_id = accountants.id
WHERE
    accountants.current_strikes <> COALESCE(ledger.strike_count, 0)
    OR accountants.total_penalties <> COALESCE(ledger.penalty_total, 0);
`

	var drifts []RollupDrift
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql).Scan(&drifts).Error; err != nil {
		return nil, err
	}
	return drifts, nil
}

// RebuildAccountantRollups recomputes the rollups of the given
// accountants from the ledger, each inside its own serialized
// transaction. Returns the number of accountants updated.
func RebuildAccountantRollups(ctx context.Context, logger *logrus.Logger, accountantIds []int) (int, error) {
	db := config.GetDB()
	updated := 0

	for _, accountantId := range utils.UniqueSlice(accountantIds) {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if lockErr := AcquireAccountantLock(tx, accountantId); lockErr != nil {
				return utils.ErrorLockNotObtained
			}
			defer ReleaseAccountantLock(tx, accountantId)

			var accountant models.Accountant
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&accountant, accountantId).Error; err != nil {
				return utils.ErrorRecordNotFound
			}

			var aggregate struct {
				StrikeCount  int
				PenaltyTotal decimal.Decimal
			}
			if err := tx.Model(&models.Strike{}).
				Where("accountant_id = ? AND status = ?", accountantId, models.StrikeStatusActive).
				Select("COUNT(id) AS strike_count, COALESCE(SUM(penalty_amount), 0) AS penalty_total").
				Scan(&aggregate).Error; err != nil {
				return err
			}

			return tx.Model(&models.Accountant{}).Where("id = ?", accountantId).
				Updates(map[string]interface{}{
					"current_strikes": aggregate.StrikeCount,
					"total_penalties": aggregate.PenaltyTotal,
				}).Error
		})
		if err != nil {
			config.LogError(logger, "reconciliationChecks.go", "RebuildAccountantRollups", "Transaction", accountantId, err)
			return updated, err
		}
		updated++
	}

	return updated, nil
}
