package models

import (
	"context"
	"time"

	"github.com/dispatchbooks/agents_backend/config"
	"github.com/dispatchbooks/agents_backend/utils"
	"github.com/shopspring/decimal"
)

// MoneyOutCompliance gates the release of one payout to a delivery agent.
// Three proof flags are set by independent verification events; once all
// three are true the record locks itself, and only a locked record with
// an uploaded proof of payment can be marked paid. Flags are monotonic
// and the status never moves backwards.
//
// All transition methods follow the soft-failure contract: an invalid or
// repeated transition returns false and leaves the record untouched.
type MoneyOutCompliance struct {
	ID                  int              `gorm:"primary_key" json:"id"`
	OrderId             int              `gorm:"index;not null" json:"order_id" binding:"required"`
	DeliveryAgentId     int              `gorm:"index;not null" json:"delivery_agent_id" binding:"required"`
	Amount              decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"amount"`
	PaymentVerified     *bool            `gorm:"not null;default:false" json:"payment_verified"`
	OtpSubmitted        *bool            `gorm:"not null;default:false" json:"otp_submitted"`
	FridayPhotoApproved *bool            `gorm:"not null;default:false" json:"friday_photo_approved"`
	ThreeWayMatch       *bool            `gorm:"not null;default:false" json:"three_way_match"`
	Status              ComplianceStatus `gorm:"type:enum('ready','locked','paid');default:'ready'" json:"status"`
	ProofOfPaymentPath  string           `gorm:"size:500" json:"proof_of_payment_path"`
	PaidById            *int             `json:"paid_by_id"`
	PaidAt              *time.Time       `json:"paid_at"`
	CreatedAt           time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMoneyOutCompliance struct {
	OrderId         int             `json:"order_id" binding:"required"`
	DeliveryAgentId int             `json:"delivery_agent_id" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
}

func (m *MoneyOutCompliance) VerifyPayment() bool {
	if m.PaymentVerified != nil && *m.PaymentVerified {
		return false
	}
	m.PaymentVerified = utils.NewTrue()
	m.checkLock()
	return true
}

func (m *MoneyOutCompliance) SubmitOtp() bool {
	if m.OtpSubmitted != nil && *m.OtpSubmitted {
		return false
	}
	m.OtpSubmitted = utils.NewTrue()
	m.checkLock()
	return true
}

func (m *MoneyOutCompliance) ApproveFridayPhoto() bool {
	if m.FridayPhotoApproved != nil && *m.FridayPhotoApproved {
		return false
	}
	m.FridayPhotoApproved = utils.NewTrue()
	m.checkLock()
	return true
}

// ApplyFlag routes a named proof flag to its setter.
func (m *MoneyOutCompliance) ApplyFlag(flag ComplianceFlag) bool {
	switch flag {
	case ComplianceFlagPayment:
		return m.VerifyPayment()
	case ComplianceFlagOtp:
		return m.SubmitOtp()
	case ComplianceFlagFridayPhoto:
		return m.ApproveFridayPhoto()
	}
	return false
}

// checkLock self-locks the payout once every proof flag is in.
func (m *MoneyOutCompliance) checkLock() {
	if !utils.DereferencePtr(m.PaymentVerified) ||
		!utils.DereferencePtr(m.OtpSubmitted) ||
		!utils.DereferencePtr(m.FridayPhotoApproved) {
		return
	}
	if !utils.DereferencePtr(m.ThreeWayMatch) {
		m.ThreeWayMatch = utils.NewTrue()
	}
	if m.Status == ComplianceStatusReady {
		m.Status = ComplianceStatusLocked
	}
}

// MarkAsPaid releases the payout. Valid only on a locked record that has
// a proof-of-payment upload; anything else is a no-op returning false.
func (m *MoneyOutCompliance) MarkAsPaid(operatorId int, now time.Time) bool {
	if m.Status != ComplianceStatusLocked {
		return false
	}
	if m.ProofOfPaymentPath == "" {
		return false
	}
	m.Status = ComplianceStatusPaid
	m.PaidById = &operatorId
	m.PaidAt = &now
	return true
}

// AttachProofOfPayment records the uploaded proof path. Returns false
// when a proof is already attached or the payout is already paid.
func (m *MoneyOutCompliance) AttachProofOfPayment(path string) bool {
	if m.Status == ComplianceStatusPaid || m.ProofOfPaymentPath != "" {
		return false
	}
	m.ProofOfPaymentPath = path
	return true
}

// ComplianceScore is 25 points per proof flag, used for review
// prioritization only, never for gating.
func (m *MoneyOutCompliance) ComplianceScore() int {
	score := 0
	if utils.DereferencePtr(m.PaymentVerified) {
		score += 25
	}
	if utils.DereferencePtr(m.OtpSubmitted) {
		score += 25
	}
	if utils.DereferencePtr(m.FridayPhotoApproved) {
		score += 25
	}
	return score
}

// IsOverdue reports whether an unpaid payout has aged past the window.
func (m *MoneyOutCompliance) IsOverdue(now time.Time, window time.Duration) bool {
	if m.Status == ComplianceStatusPaid {
		return false
	}
	return now.Sub(m.CreatedAt) > window
}

func (input *NewMoneyOutCompliance) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Order](ctx, input.OrderId); err != nil {
		return err
	}
	return utils.ValidateResourceId[DeliveryAgent](ctx, input.DeliveryAgentId)
}

func CreateMoneyOutCompliance(ctx context.Context, input *NewMoneyOutCompliance) (*MoneyOutCompliance, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	record := MoneyOutCompliance{
		OrderId:             input.OrderId,
		DeliveryAgentId:     input.DeliveryAgentId,
		Amount:              input.Amount,
		PaymentVerified:     utils.NewFalse(),
		OtpSubmitted:        utils.NewFalse(),
		FridayPhotoApproved: utils.NewFalse(),
		ThreeWayMatch:       utils.NewFalse(),
		Status:              ComplianceStatusReady,
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}

	return &record, nil
}

func GetMoneyOutCompliance(ctx context.Context, id int) (*MoneyOutCompliance, error) {
	return utils.FetchModel[MoneyOutCompliance](ctx, id)
}
