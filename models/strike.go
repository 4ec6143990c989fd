package models

import (
	"context"
	"time"

	"github.com/dispatchbooks/agents_backend/utils"
	"github.com/shopspring/decimal"
)

// Strike is one append-only penalty ledger entry against an accountant.
// StrikeNumber is monotonically increasing per accountant; the composite
// unique index backstops the per-accountant serialization in the
// workflow package (a duplicate-key error there means a lost race and is
// surfaced as a retryable conflict).
type Strike struct {
	ID            int             `gorm:"primary_key" json:"id"`
	AccountantId  int             `gorm:"not null;uniqueIndex:idx_accountant_strike_no" json:"accountant_id" binding:"required"`
	StrikeNumber  int             `gorm:"not null;uniqueIndex:idx_accountant_strike_no" json:"strike_number"`
	ViolationType ViolationType   `gorm:"type:enum('payment_mismatch','missing_receipt','late_reconciliation','other');not null" json:"violation_type"`
	Description   string          `gorm:"type:text" json:"description"`
	PenaltyAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"penalty_amount"`
	OrderId       *int            `gorm:"index" json:"order_id"`
	Evidence      string          `gorm:"type:text" json:"evidence"`
	Status        StrikeStatus    `gorm:"type:enum('active','resolved','disputed');default:'active'" json:"status"`
	IssuedDate    time.Time       `gorm:"not null" json:"issued_date"`
	ResolvedAt    *time.Time      `json:"resolved_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStrike struct {
	AccountantId  int             `json:"accountant_id" binding:"required"`
	ViolationType string          `json:"violation_type" binding:"required"`
	Description   string          `json:"description" binding:"required"`
	PenaltyAmount decimal.Decimal `json:"penalty_amount"`
	OrderId       *int            `json:"order_id"`
	Evidence      string          `json:"evidence"`
}

func (input *NewStrike) Validate(ctx context.Context) (ViolationType, error) {
	violationType, err := ParseViolationType(input.ViolationType)
	if err != nil {
		return "", err
	}
	if err := utils.ValidateResourceId[Accountant](ctx, input.AccountantId); err != nil {
		return "", err
	}
	if input.OrderId != nil {
		if err := utils.ValidateResourceId[Order](ctx, *input.OrderId); err != nil {
			return "", err
		}
	}
	return violationType, nil
}

func (s *Strike) IsActive() bool {
	return s.Status == StrikeStatusActive
}

// Resolve closes an active strike. Returns false when the strike is not
// active (already resolved or under dispute).
func (s *Strike) Resolve(now time.Time) bool {
	if s.Status != StrikeStatusActive {
		return false
	}
	s.Status = StrikeStatusResolved
	s.ResolvedAt = &now
	return true
}
