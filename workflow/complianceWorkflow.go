package workflow

import (
	"context"
	"time"

	"github.com/dispatchbooks/agents_backend/config"
	"github.com/dispatchbooks/agents_backend/models"
	"github.com/dispatchbooks/agents_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OverdueWindow is how long a payout may sit unpaid before it is
// surfaced for escalation. Overridable via PAYOUT_OVERDUE_HOURS.
func OverdueWindow() time.Duration {
	return time.Duration(config.IntFromEnv("PAYOUT_OVERDUE_HOURS", 48)) * time.Hour
}

type ComplianceResult struct {
	Ok        bool                    `json:"ok"`
	NewStatus models.ComplianceStatus `json:"new_status"`
	Score     int                     `json:"score"`
	Reason    string                  `json:"reason,omitempty"`
}

// SetComplianceFlag applies one proof flag to a payout, serialized per
// payout so two flags arriving concurrently cannot both miss the
// all-flags-true lock condition. Re-setting a flag is a no-op failure.
func SetComplianceFlag(ctx context.Context, logger *logrus.Logger, payoutId int, flag models.ComplianceFlag, now time.Time) (*ComplianceResult, error) {
	db := config.GetDB()
	result := &ComplianceResult{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if lockErr := AcquirePayoutLock(tx, payoutId); lockErr != nil {
			return utils.ErrorLockNotObtained
		}
		defer ReleasePayoutLock(tx, payoutId)

		var payout models.MoneyOutCompliance
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payout, payoutId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}

		applied := payout.ApplyFlag(flag)
		result.NewStatus = payout.Status
		result.Score = payout.ComplianceScore()
		if !applied {
			result.Ok = false
			result.Reason = "flag already set"
			return nil
		}

		if err := tx.Model(&models.MoneyOutCompliance{}).Where("id = ?", payout.ID).
			Updates(map[string]interface{}{
				"payment_verified":      payout.PaymentVerified,
				"otp_submitted":         payout.OtpSubmitted,
				"friday_photo_approved": payout.FridayPhotoApproved,
				"three_way_match":       payout.ThreeWayMatch,
				"status":                payout.Status,
			}).Error; err != nil {
			return err
		}

		result.Ok = true
		return nil
	})
	if err != nil {
		config.LogError(logger, "complianceWorkflow.go", "SetComplianceFlag", string(flag), payoutId, err)
		return nil, err
	}
	return result, nil
}

// MarkPayoutPaid releases a locked payout with proof of payment on file.
// Anything else soft-fails without mutation.
func MarkPayoutPaid(ctx context.Context, logger *logrus.Logger, payoutId int, operatorId int, now time.Time) (*ComplianceResult, error) {
	db := config.GetDB()
	result := &ComplianceResult{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if lockErr := AcquirePayoutLock(tx, payoutId); lockErr != nil {
			return utils.ErrorLockNotObtained
		}
		defer ReleasePayoutLock(tx, payoutId)

		var payout models.MoneyOutCompliance
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payout, payoutId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}

		result.Score = payout.ComplianceScore()
		if !payout.MarkAsPaid(operatorId, now) {
			result.Ok = false
			result.NewStatus = payout.Status
			if payout.Status != models.ComplianceStatusLocked {
				result.Reason = "payout is not locked"
			} else {
				result.Reason = "proof of payment missing"
			}
			return nil
		}

		if err := tx.Model(&models.MoneyOutCompliance{}).Where("id = ?", payout.ID).
			Updates(map[string]interface{}{
				"status":     payout.Status,
				"paid_by_id": payout.PaidById,
				"paid_at":    payout.PaidAt,
			}).Error; err != nil {
			return err
		}

		result.Ok = true
		result.NewStatus = payout.Status
		return nil
	})
	if err != nil {
		config.LogError(logger, "complianceWorkflow.go", "MarkPayoutPaid", "Transaction", payoutId, err)
		return nil, err
	}
	return result, nil
}

// AttachPayoutProof stores the proof-of-payment upload path on a payout.
func AttachPayoutProof(ctx context.Context, logger *logrus.Logger, payoutId int, path string) (*ComplianceResult, error) {
	db := config.GetDB()
	result := &ComplianceResult{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if lockErr := AcquirePayoutLock(tx, payoutId); lockErr != nil {
			return utils.ErrorLockNotObtained
		}
		defer ReleasePayoutLock(tx, payoutId)

		var payout models.MoneyOutCompliance
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payout, payoutId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}

		result.NewStatus = payout.Status
		result.Score = payout.ComplianceScore()
		if !payout.AttachProofOfPayment(path) {
			result.Ok = false
			result.Reason = "proof already attached or payout paid"
			return nil
		}

		if err := tx.Model(&models.MoneyOutCompliance{}).Where("id = ?", payout.ID).
			Update("proof_of_payment_path", payout.ProofOfPaymentPath).Error; err != nil {
			return err
		}

		result.Ok = true
		return nil
	})
	if err != nil {
		config.LogError(logger, "complianceWorkflow.go", "AttachPayoutProof", "Transaction", payoutId, err)
		return nil, err
	}
	return result, nil
}

// ListOverduePayouts returns unpaid payouts older than the overdue
// window, oldest first. Observational only; nothing transitions.
func ListOverduePayouts(ctx context.Context, now time.Time) ([]*models.MoneyOutCompliance, error) {
	db := config.GetDB()
	cutoff := now.Add(-OverdueWindow())

	var payouts []*models.MoneyOutCompliance
	err := db.WithContext(ctx).
		Where("status <> ? AND created_at < ?", models.ComplianceStatusPaid, cutoff).
		Order("created_at asc").
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}
