package models

import (
	"context"
	"time"

	"github.com/dispatchbooks/agents_backend/config"
	"github.com/dispatchbooks/agents_backend/utils"
)

type DeliveryAgent struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Phone     string    `gorm:"size:50;not null" json:"phone" binding:"required"`
	ZoneCode  string    `gorm:"size:50" json:"zone_code"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDeliveryAgent struct {
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	ZoneCode string `json:"zone_code"`
}

func (input *NewDeliveryAgent) validate(ctx context.Context, id int) error {
	return utils.ValidateUnique[DeliveryAgent](ctx, "phone", input.Phone, id)
}

func CreateDeliveryAgent(ctx context.Context, input *NewDeliveryAgent) (*DeliveryAgent, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	agent := DeliveryAgent{
		Name:     input.Name,
		Phone:    input.Phone,
		ZoneCode: input.ZoneCode,
		IsActive: utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&agent).Error; err != nil {
		return nil, err
	}

	return &agent, nil
}

func GetDeliveryAgent(ctx context.Context, id int) (*DeliveryAgent, error) {
	return utils.FetchModel[DeliveryAgent](ctx, id)
}
