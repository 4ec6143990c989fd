package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestApplyStrikeRollups(t *testing.T) {
	now := time.Now()
	penalty := decimal.NewFromInt(20000)

	accountant := Accountant{Status: AccountantStatusActive}
	for i := 0; i < 3; i++ {
		accountant.ApplyStrike(penalty, 5, now)
	}

	if accountant.CurrentStrikes != 3 {
		t.Fatalf("current_strikes = %d, want 3", accountant.CurrentStrikes)
	}
	if !accountant.TotalPenalties.Equal(decimal.NewFromInt(60000)) {
		t.Fatalf("total_penalties = %s, want 60000", accountant.TotalPenalties)
	}
	if accountant.IsSuspended() {
		t.Fatal("3 strikes must not suspend at limit 5")
	}
}

func TestSuspensionAtThreshold(t *testing.T) {
	now := time.Now()
	penalty := decimal.NewFromInt(20000)

	accountant := Accountant{Status: AccountantStatusActive, CurrentStrikes: 4}
	accountant.ApplyStrike(penalty, 5, now)

	if accountant.CurrentStrikes != 5 {
		t.Fatalf("current_strikes = %d, want 5", accountant.CurrentStrikes)
	}
	if !accountant.IsSuspended() {
		t.Fatal("fifth strike must suspend the accountant")
	}
	if accountant.SuspendedAt == nil || !accountant.SuspendedAt.Equal(now) {
		t.Fatal("suspended_at not stamped")
	}
}

func TestReleaseStrikeRollups(t *testing.T) {
	now := time.Now()
	penalty := decimal.NewFromInt(20000)

	accountant := Accountant{Status: AccountantStatusActive}
	// N adds, M releases: rollup must end at N-M
	for i := 0; i < 4; i++ {
		accountant.ApplyStrike(penalty, 5, now)
	}
	accountant.ReleaseStrike(penalty)
	accountant.ReleaseStrike(penalty)

	if accountant.CurrentStrikes != 2 {
		t.Fatalf("current_strikes = %d, want 2", accountant.CurrentStrikes)
	}
	if !accountant.TotalPenalties.Equal(decimal.NewFromInt(40000)) {
		t.Fatalf("total_penalties = %s, want 40000", accountant.TotalPenalties)
	}
}

func TestReleaseStrikeDoesNotLiftSuspension(t *testing.T) {
	now := time.Now()
	penalty := decimal.NewFromInt(20000)

	accountant := Accountant{Status: AccountantStatusActive, CurrentStrikes: 4}
	accountant.ApplyStrike(penalty, 5, now)
	if !accountant.IsSuspended() {
		t.Fatal("expected suspension")
	}

	accountant.ReleaseStrike(penalty)
	if !accountant.IsSuspended() {
		t.Fatal("resolution must not auto-reinstate a suspended accountant")
	}
}

func TestReleaseStrikeFloorsAtZero(t *testing.T) {
	accountant := Accountant{Status: AccountantStatusActive}
	accountant.ReleaseStrike(decimal.NewFromInt(20000))

	if accountant.CurrentStrikes != 0 {
		t.Fatalf("current_strikes = %d, want 0", accountant.CurrentStrikes)
	}
	if accountant.TotalPenalties.IsNegative() {
		t.Fatalf("total_penalties went negative: %s", accountant.TotalPenalties)
	}
}

func TestStrikeResolve(t *testing.T) {
	now := time.Now()

	strike := Strike{Status: StrikeStatusActive}
	if !strike.Resolve(now) {
		t.Fatal("resolving an active strike should succeed")
	}
	if strike.Status != StrikeStatusResolved || strike.ResolvedAt == nil {
		t.Fatal("resolution not recorded")
	}

	if strike.Resolve(now) {
		t.Fatal("resolving twice must fail")
	}

	disputed := Strike{Status: StrikeStatusDisputed}
	if disputed.Resolve(now) {
		t.Fatal("resolving a disputed strike must fail")
	}
	if disputed.Status != StrikeStatusDisputed {
		t.Fatal("failed resolve must not mutate")
	}
}
