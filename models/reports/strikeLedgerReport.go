package reports

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dispatchbooks/agents_backend/config"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type StrikeLedgerRow struct {
	AccountantId   int             `json:"accountant_id"`
	AccountantName string          `json:"accountant_name"`
	StrikeNumber   int             `json:"strike_number"`
	ViolationType  string          `json:"violation_type"`
	PenaltyAmount  decimal.Decimal `json:"penalty_amount"`
	Status         string          `json:"status"`
	IssuedDate     time.Time       `json:"issued_date"`
}

func GetStrikeLedgerReport(ctx context.Context) ([]*StrikeLedgerRow, error) {

	sql := `
SELECT
    strikes.accountant_id,
    accountants.name AS accountant_name,
    strikes.strike_number,
    strikes.violation_type,
    strikes.penalty_amount,
    strikes.status,
    strikes.issued_date
FROM
    strikes
    LEFT JOIN accountants ON accountants.id = strikes.accountant_id
ORDER BY
    strikes.accountant_id, strikes.strike_number;
`

	var records []*StrikeLedgerRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql).Scan(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func ExportStrikeLedgerExcel(w http.ResponseWriter, r *http.Request) {

	f := excelize.NewFile()
	_, err := f.NewSheet("Sheet1")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
	data, err := GetStrikeLedgerReport(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
	}

	// Add headers
	f.SetCellValue("Sheet1", "A1", "Accountant")
	f.SetCellValue("Sheet1", "B1", "StrikeNumber")
	f.SetCellValue("Sheet1", "C1", "ViolationType")
	f.SetCellValue("Sheet1", "D1", "Penalty")
	f.SetCellValue("Sheet1", "E1", "Status")
	f.SetCellValue("Sheet1", "F1", "IssuedDate")

	// Add data
	for i, d := range data {
		f.SetCellValue("Sheet1", "A"+fmt.Sprint(i+2), d.AccountantName)
		f.SetCellValue("Sheet1", "B"+fmt.Sprint(i+2), d.StrikeNumber)
		f.SetCellValue("Sheet1", "C"+fmt.Sprint(i+2), d.ViolationType)
		f.SetCellValue("Sheet1", "D"+fmt.Sprint(i+2), d.PenaltyAmount.String())
		f.SetCellValue("Sheet1", "E"+fmt.Sprint(i+2), d.Status)
		f.SetCellValue("Sheet1", "F"+fmt.Sprint(i+2), d.IssuedDate.Format(time.DateOnly))
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=strike-ledger.xlsx")
	if err := f.Write(w); err != nil {
		http.Error(w, "Failed to write file", http.StatusInternalServerError)
	}
}
