package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/dispatchbooks/agents_backend/config"
	"github.com/dispatchbooks/agents_backend/models"
	"github.com/dispatchbooks/agents_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VerificationResult struct {
	Ok       bool                             `json:"ok"`
	Matched  bool                             `json:"matched"`
	Status   models.PaymentVerificationStatus `json:"status"`
	Outcome  *models.VerificationOutcome      `json:"outcome,omitempty"`
	StrikeId *int                             `json:"strike_id,omitempty"`
	Reason   string                           `json:"reason,omitempty"`
}

// VerifyThreeWayMatch compares the three reported amounts of a pending
// payment record. On mismatch the strike against the processing
// accountant is issued inside the same transaction as the status update,
// so the ledger and the record can never diverge on a crash. Verifying a
// record twice is a no-op failure result.
func VerifyThreeWayMatch(ctx context.Context, logger *logrus.Logger, paymentRecordId int, now time.Time) (*VerificationResult, error) {
	db := config.GetDB()
	result := &VerificationResult{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.PaymentRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&record, paymentRecordId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}

		if record.Status != models.PaymentVerificationStatusPending {
			result.Ok = false
			result.Status = record.Status
			result.Reason = "payment record already processed"
			return nil
		}

		outcome := record.Evaluate()
		result.Outcome = &outcome
		result.Status = outcome.Status
		result.Matched = outcome.Matched

		if err := tx.Model(&models.PaymentRecord{}).Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"status":       outcome.Status,
				"processed_at": now,
			}).Error; err != nil {
			return err
		}

		switch outcome.Status {
		case models.PaymentVerificationStatusThreeWay:
			// feed the compliance gate: the linked payout's three-way
			// flag is monotonic, set it when a payout row exists
			if err := tx.Model(&models.MoneyOutCompliance{}).
				Where("order_id = ? AND three_way_match = ?", record.OrderId, false).
				Update("three_way_match", true).Error; err != nil {
				return err
			}
			result.Ok = true

		case models.PaymentVerificationStatusMismatch:
			if lockErr := AcquireAccountantLock(tx, record.AccountantId); lockErr != nil {
				return utils.ErrorLockNotObtained
			}
			defer ReleaseAccountantLock(tx, record.AccountantId)

			description := fmt.Sprintf("three-way mismatch on order #%d: IM says %q, DA says %q, Zoho shows %q",
				record.OrderId, record.ImSays, record.DaSays, record.ZohoShows)
			strike, strikeErr := addStrikeTx(tx, logger, record.AccountantId, models.ViolationTypePaymentMismatch,
				description, DefaultMismatchPenalty(), &record.OrderId, "", now)
			if strikeErr != nil {
				return strikeErr
			}
			result.StrikeId = &strike.ID
			result.Ok = false
			result.Reason = "amounts do not agree"

		case models.PaymentVerificationStatusUnparseable:
			// a statement with no digits is surfaced for manual review,
			// never coerced to zero and never penalized
			result.Ok = false
			result.Reason = "amount statement has no parseable quantity"
		}

		return nil
	})
	if err != nil {
		config.LogError(logger, "verificationWorkflow.go", "VerifyThreeWayMatch", "Transaction", paymentRecordId, err)
		return nil, err
	}
	return result, nil
}

// ConfirmPaymentRecord moves a matched record to confirmed once the
// accountant uploads the receipt. Soft-fails unless the record is a
// three-way match with a receipt attached.
func ConfirmPaymentRecord(ctx context.Context, logger *logrus.Logger, paymentRecordId int, receiptPath string) (*VerificationResult, error) {
	db := config.GetDB()
	result := &VerificationResult{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.PaymentRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&record, paymentRecordId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}

		if record.Status != models.PaymentVerificationStatusThreeWay {
			result.Ok = false
			result.Status = record.Status
			result.Reason = "only a 3_way_match record can be confirmed"
			return nil
		}
		if !record.AttachReceipt(receiptPath) {
			result.Ok = false
			result.Status = record.Status
			result.Reason = "receipt already uploaded"
			return nil
		}

		if err := tx.Model(&models.PaymentRecord{}).Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"status":           models.PaymentVerificationStatusConfirmed,
				"receipt_uploaded": true,
				"receipt_path":     record.ReceiptPath,
			}).Error; err != nil {
			return err
		}

		result.Ok = true
		result.Status = models.PaymentVerificationStatusConfirmed
		return nil
	})
	if err != nil {
		config.LogError(logger, "verificationWorkflow.go", "ConfirmPaymentRecord", "Transaction", paymentRecordId, err)
		return nil, err
	}
	return result, nil
}
