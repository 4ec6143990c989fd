package models

import (
	"errors"
)

type PaymentVerificationStatus string

const (
	PaymentVerificationStatusPending     PaymentVerificationStatus = "pending"
	PaymentVerificationStatusThreeWay    PaymentVerificationStatus = "3_way_match"
	PaymentVerificationStatusMismatch    PaymentVerificationStatus = "mismatch"
	PaymentVerificationStatusUnparseable PaymentVerificationStatus = "unparseable"
	PaymentVerificationStatusConfirmed   PaymentVerificationStatus = "confirmed"
)

type ComplianceStatus string

const (
	ComplianceStatusReady  ComplianceStatus = "ready"
	ComplianceStatusLocked ComplianceStatus = "locked"
	ComplianceStatusPaid   ComplianceStatus = "paid"
)

type StrikeStatus string

const (
	StrikeStatusActive   StrikeStatus = "active"
	StrikeStatusResolved StrikeStatus = "resolved"
	StrikeStatusDisputed StrikeStatus = "disputed"
)

type AccountantStatus string

const (
	AccountantStatusActive    AccountantStatus = "active"
	AccountantStatusSuspended AccountantStatus = "suspended"
)

type ViolationType string

const (
	ViolationTypePaymentMismatch    ViolationType = "payment_mismatch"
	ViolationTypeMissingReceipt     ViolationType = "missing_receipt"
	ViolationTypeLateReconciliation ViolationType = "late_reconciliation"
	ViolationTypeOther              ViolationType = "other"
)

func ParseViolationType(s string) (ViolationType, error) {
	switch s {
	case "payment_mismatch":
		return ViolationTypePaymentMismatch, nil
	case "missing_receipt":
		return ViolationTypeMissingReceipt, nil
	case "late_reconciliation":
		return ViolationTypeLateReconciliation, nil
	case "other":
		return ViolationTypeOther, nil
	default:
		return "", errors.New("invalid violation type")
	}
}

// ComplianceFlag names the independent proof flags on a payout.
type ComplianceFlag string

const (
	ComplianceFlagPayment     ComplianceFlag = "payment"
	ComplianceFlagOtp         ComplianceFlag = "otp"
	ComplianceFlagFridayPhoto ComplianceFlag = "friday_photo"
)

func ParseComplianceFlag(s string) (ComplianceFlag, error) {
	switch s {
	case "payment":
		return ComplianceFlagPayment, nil
	case "otp":
		return ComplianceFlagOtp, nil
	case "friday_photo":
		return ComplianceFlagFridayPhoto, nil
	default:
		return "", errors.New("invalid compliance flag")
	}
}
