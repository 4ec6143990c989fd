package models

import (
	"context"
	"time"

	"github.com/dispatchbooks/agents_backend/config"
	"github.com/dispatchbooks/agents_backend/utils"
)

// PaymentRecord holds the three independently reported amount statements
// for one delivery payment event: what the inventory manager says went
// out, what the delivery agent says was collected, and what the payment
// gateway shows. Each is free text with an embedded quantity, e.g.
// "8 shampoos". The record is mutated exactly once, by the verification
// workflow.
type PaymentRecord struct {
	ID              int                       `gorm:"primary_key" json:"id"`
	OrderId         int                       `gorm:"index;not null" json:"order_id" binding:"required"`
	AccountantId    int                       `gorm:"index;not null" json:"accountant_id" binding:"required"`
	ImSays          string                    `gorm:"size:255;not null" json:"im_says" binding:"required"`
	DaSays          string                    `gorm:"size:255;not null" json:"da_says" binding:"required"`
	ZohoShows       string                    `gorm:"size:255;not null" json:"zoho_shows" binding:"required"`
	Status          PaymentVerificationStatus `gorm:"type:enum('pending','3_way_match','mismatch','unparseable','confirmed');default:'pending'" json:"status"`
	ProcessedAt     *time.Time                `json:"processed_at"`
	ReceiptUploaded *bool                     `gorm:"not null;default:false" json:"receipt_uploaded"`
	ReceiptPath     string                    `gorm:"size:500" json:"receipt_path"`
	CreatedAt       time.Time                 `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time                 `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPaymentRecord struct {
	OrderId      int    `json:"order_id" binding:"required"`
	AccountantId int    `json:"accountant_id" binding:"required"`
	ImSays       string `json:"im_says" binding:"required"`
	DaSays       string `json:"da_says" binding:"required"`
	ZohoShows    string `json:"zoho_shows" binding:"required"`
}

// VerificationOutcome is the result of evaluating the three statements.
// Rejections are values, not errors.
type VerificationOutcome struct {
	Status     PaymentVerificationStatus `json:"status"`
	Matched    bool                      `json:"matched"`
	ImAmount   int64                     `json:"im_amount"`
	DaAmount   int64                     `json:"da_amount"`
	ZohoAmount int64                     `json:"zoho_amount"`
}

// ParseAmountStatement extracts the first contiguous run of digits from a
// free-text statement. ok is false when the statement contains no digits;
// such statements are surfaced as unparseable rather than coerced to zero.
func ParseAmountStatement(s string) (int64, bool) {
	var n int64
	found := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			found = true
			n = n*10 + int64(c-'0')
		} else if found {
			break
		}
	}
	return n, found
}

// Evaluate decides the three-way outcome of a pending record. It does not
// mutate the record; the verification workflow applies the resulting
// status inside its transaction.
func (p *PaymentRecord) Evaluate() VerificationOutcome {
	im, imOk := ParseAmountStatement(p.ImSays)
	da, daOk := ParseAmountStatement(p.DaSays)
	zoho, zohoOk := ParseAmountStatement(p.ZohoShows)

	outcome := VerificationOutcome{
		ImAmount:   im,
		DaAmount:   da,
		ZohoAmount: zoho,
	}

	if !imOk || !daOk || !zohoOk {
		outcome.Status = PaymentVerificationStatusUnparseable
		return outcome
	}
	if im == da && da == zoho {
		outcome.Status = PaymentVerificationStatusThreeWay
		outcome.Matched = true
		return outcome
	}
	outcome.Status = PaymentVerificationStatusMismatch
	return outcome
}

// AttachReceipt records the uploaded receipt path. Returns false when a
// receipt is already attached.
func (p *PaymentRecord) AttachReceipt(path string) bool {
	if p.ReceiptUploaded != nil && *p.ReceiptUploaded {
		return false
	}
	p.ReceiptUploaded = utils.NewTrue()
	p.ReceiptPath = path
	return true
}

func (input *NewPaymentRecord) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Order](ctx, input.OrderId); err != nil {
		return err
	}
	return utils.ValidateResourceId[Accountant](ctx, input.AccountantId)
}

func CreatePaymentRecord(ctx context.Context, input *NewPaymentRecord) (*PaymentRecord, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	record := PaymentRecord{
		OrderId:         input.OrderId,
		AccountantId:    input.AccountantId,
		ImSays:          input.ImSays,
		DaSays:          input.DaSays,
		ZohoShows:       input.ZohoShows,
		Status:          PaymentVerificationStatusPending,
		ReceiptUploaded: utils.NewFalse(),
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}

	return &record, nil
}

func GetPaymentRecord(ctx context.Context, id int) (*PaymentRecord, error) {
	return utils.FetchModel[PaymentRecord](ctx, id)
}
