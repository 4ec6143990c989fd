package models

import (
	"context"
	"time"

	"github.com/dispatchbooks/agents_backend/config"
	"github.com/dispatchbooks/agents_backend/utils"
	"github.com/shopspring/decimal"
)

// Accountant is the staff member responsible for processing and verifying
// delivery payments. CurrentStrikes and TotalPenalties are denormalized
// rollups of the strike ledger; they are only ever touched inside the
// serialized strike transactions (workflow package) and can be rebuilt
// from the ledger with cmd/rollup-rebuild.
type Accountant struct {
	ID             int              `gorm:"primary_key" json:"id"`
	Name           string           `gorm:"size:255;not null" json:"name" binding:"required"`
	Email          string           `gorm:"size:255;uniqueIndex;not null" json:"email" binding:"required"`
	Phone          string           `gorm:"size:50" json:"phone"`
	Status         AccountantStatus `gorm:"type:enum('active','suspended');default:'active'" json:"status"`
	CurrentStrikes int              `gorm:"not null;default:0" json:"current_strikes"`
	TotalPenalties decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"total_penalties"`
	SuspendedAt    *time.Time       `json:"suspended_at"`
	Strikes        []*Strike        `gorm:"foreignKey:AccountantId" json:"strikes,omitempty"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccountant struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone"`
}

func (input *NewAccountant) validate(ctx context.Context, id int) error {
	return utils.ValidateUnique[Accountant](ctx, "email", input.Email, id)
}

func (a *Accountant) IsSuspended() bool {
	return a.Status == AccountantStatusSuspended
}

// ApplyStrike adds one strike worth of rollup to the accountant and
// suspends them once the strike count reaches suspendLimit. It mutates
// the in-memory record only; the caller persists inside its transaction.
func (a *Accountant) ApplyStrike(penalty decimal.Decimal, suspendLimit int, now time.Time) {
	a.CurrentStrikes++
	a.TotalPenalties = a.TotalPenalties.Add(penalty)
	if a.CurrentStrikes >= suspendLimit && a.Status != AccountantStatusSuspended {
		a.Status = AccountantStatusSuspended
		a.SuspendedAt = &now
	}
}

// ReleaseStrike reverses one strike worth of rollup after resolution.
// Suspension is not lifted automatically; reinstatement is a manual call.
func (a *Accountant) ReleaseStrike(penalty decimal.Decimal) {
	if a.CurrentStrikes > 0 {
		a.CurrentStrikes--
	}
	a.TotalPenalties = a.TotalPenalties.Sub(penalty)
	if a.TotalPenalties.IsNegative() {
		a.TotalPenalties = decimal.Zero
	}
}

func CreateAccountant(ctx context.Context, input *NewAccountant) (*Accountant, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	accountant := Accountant{
		Name:   input.Name,
		Email:  input.Email,
		Phone:  input.Phone,
		Status: AccountantStatusActive,
	}
	if err := db.WithContext(ctx).Create(&accountant).Error; err != nil {
		return nil, err
	}

	return &accountant, nil
}

func GetAccountant(ctx context.Context, id int) (*Accountant, error) {
	return utils.FetchModel[Accountant](ctx, id)
}

func ListAccountants(ctx context.Context) ([]*Accountant, error) {
	return utils.FetchAllModels[Accountant](ctx)
}
