package models

import (
	"log"

	"github.com/dispatchbooks/agents_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Accountant{}, &DeliveryAgent{}, &Order{},
		&PaymentRecord{}, &MoneyOutCompliance{},
		&Strike{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
