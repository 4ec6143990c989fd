package reports

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dispatchbooks/agents_backend/config"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type PayoutAgingRow struct {
	PayoutId    int             `json:"payout_id"`
	OrderNumber string          `json:"order_number"`
	AgentName   string          `json:"agent_name"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	Score       int             `json:"score"`
	AgeHours    int             `json:"age_hours"`
}

// AgeBucket groups open payouts for escalation review: the last bucket
// is the 48h overdue threshold.
func (r *PayoutAgingRow) AgeBucket() string {
	switch {
	case r.AgeHours < 24:
		return "0-24h"
	case r.AgeHours < 48:
		return "24-48h"
	default:
		return ">48h overdue"
	}
}

func GetPayoutAgingReport(ctx context.Context) ([]*PayoutAgingRow, error) {

	sql := `
SELECT
    moc.id AS payout_id,
    orders.order_number,
    delivery_agents.name AS agent_name,
    moc.amount,
    moc.status,
    (IF(moc.payment_verified, 25, 0) + IF(moc.otp_submitted, 25, 0) + IF(moc.friday_photo_approved, 25, 0)) AS score,
    TIMESTAMPDIFF(HOUR, moc.created_at, NOW()) AS age_hours
FROM
    money_out_compliances AS moc
    LEFT JOIN orders ON orders.id = moc.order_id
    LEFT JOIN delivery_agents ON delivery_agents.id = moc.delivery_agent_id
WHERE
    moc.status <> 'paid'
ORDER BY
    moc.created_at;
`

	var records []*PayoutAgingRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql).Scan(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func ExportPayoutAgingExcel(w http.ResponseWriter, r *http.Request) {

	f := excelize.NewFile()
	_, err := f.NewSheet("Sheet1")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
	data, err := GetPayoutAgingReport(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
	}

	// Add headers
	f.SetCellValue("Sheet1", "A1", "Order")
	f.SetCellValue("Sheet1", "B1", "Agent")
	f.SetCellValue("Sheet1", "C1", "Amount")
	f.SetCellValue("Sheet1", "D1", "Status")
	f.SetCellValue("Sheet1", "E1", "Score")
	f.SetCellValue("Sheet1", "F1", "Bucket")

	// Add data
	for i, d := range data {
		f.SetCellValue("Sheet1", "A"+fmt.Sprint(i+2), d.OrderNumber)
		f.SetCellValue("Sheet1", "B"+fmt.Sprint(i+2), d.AgentName)
		f.SetCellValue("Sheet1", "C"+fmt.Sprint(i+2), d.Amount.String())
		f.SetCellValue("Sheet1", "D"+fmt.Sprint(i+2), d.Status)
		f.SetCellValue("Sheet1", "E"+fmt.Sprint(i+2), d.Score)
		f.SetCellValue("Sheet1", "F"+fmt.Sprint(i+2), d.AgeBucket())
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=payout-aging.xlsx")
	if err := f.Write(w); err != nil {
		http.Error(w, "Failed to write file", http.StatusInternalServerError)
	}
}
