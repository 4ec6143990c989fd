package models

import (
	"context"
	"time"

	"github.com/dispatchbooks/agents_backend/config"
	"github.com/dispatchbooks/agents_backend/utils"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID              int             `gorm:"primary_key" json:"id"`
	OrderNumber     string          `gorm:"size:255;uniqueIndex;not null" json:"order_number" binding:"required"`
	DeliveryAgentId int             `gorm:"index;not null" json:"delivery_agent_id" binding:"required"`
	AccountantId    int             `gorm:"index;not null" json:"accountant_id" binding:"required"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	OrderDate       time.Time       `gorm:"not null" json:"order_date" binding:"required"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOrder struct {
	OrderNumber     string          `json:"order_number" binding:"required"`
	DeliveryAgentId int             `json:"delivery_agent_id" binding:"required"`
	AccountantId    int             `json:"accountant_id" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	OrderDate       time.Time       `json:"order_date" binding:"required"`
}

func (input *NewOrder) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[Order](ctx, "order_number", input.OrderNumber, id); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[DeliveryAgent](ctx, input.DeliveryAgentId); err != nil {
		return err
	}
	return utils.ValidateResourceId[Accountant](ctx, input.AccountantId)
}

func CreateOrder(ctx context.Context, input *NewOrder) (*Order, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	order := Order{
		OrderNumber:     input.OrderNumber,
		DeliveryAgentId: input.DeliveryAgentId,
		AccountantId:    input.AccountantId,
		Amount:          input.Amount,
		OrderDate:       input.OrderDate,
	}
	if err := db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}

	return &order, nil
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	return utils.FetchModel[Order](ctx, id)
}
