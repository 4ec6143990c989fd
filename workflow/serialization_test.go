package workflow

import (
	"sync"
	"testing"
	"time"

	"github.com/dispatchbooks/agents_backend/models"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. They validate the intended
// serialization semantics of strike issuance:
// - per-accountant locking keeps strike numbers a gapless monotonic sequence
// - rollup counters cannot lose updates under concurrent issuance/resolution
//
// Full DB integration coverage lives in integration_test.go and requires MySQL.

type fakeStrikeLedger struct {
	mu       sync.Mutex
	muByAcct map[int]*sync.Mutex
	strikes  map[int][]*models.Strike
	rollups  map[int]*models.Accountant
}

func newFakeStrikeLedger() *fakeStrikeLedger {
	return &fakeStrikeLedger{
		muByAcct: map[int]*sync.Mutex{},
		strikes:  map[int][]*models.Strike{},
		rollups:  map[int]*models.Accountant{},
	}
}

func (l *fakeStrikeLedger) lockFor(accountantId int) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.muByAcct[accountantId]
	if m == nil {
		m = &sync.Mutex{}
		l.muByAcct[accountantId] = m
	}
	return m
}

// addStrike models addStrikeTx: serialized per accountant
// (AcquireAccountantLock), ledger append with MAX(strike_number)+1,
// rollup maintenance in the same critical section.
func (l *fakeStrikeLedger) addStrike(accountantId int, penalty decimal.Decimal, now time.Time) {
	m := l.lockFor(accountantId)
	m.Lock()
	defer m.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.rollups[accountantId]
	if acct == nil {
		acct = &models.Accountant{ID: accountantId, Status: models.AccountantStatusActive}
		l.rollups[accountantId] = acct
	}

	maxNumber := 0
	for _, s := range l.strikes[accountantId] {
		if s.StrikeNumber > maxNumber {
			maxNumber = s.StrikeNumber
		}
	}
	l.strikes[accountantId] = append(l.strikes[accountantId], &models.Strike{
		AccountantId:  accountantId,
		StrikeNumber:  maxNumber + 1,
		PenaltyAmount: penalty,
		Status:        models.StrikeStatusActive,
		IssuedDate:    now,
	})
	acct.ApplyStrike(penalty, 5, now)
}

func (l *fakeStrikeLedger) resolveOldestActive(accountantId int, now time.Time) {
	m := l.lockFor(accountantId)
	m.Lock()
	defer m.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.strikes[accountantId] {
		if s.IsActive() && s.Resolve(now) {
			l.rollups[accountantId].ReleaseStrike(s.PenaltyAmount)
			return
		}
	}
}

func TestConcurrentStrikeNumbersStaySequential(t *testing.T) {
	ledger := newFakeStrikeLedger()
	penalty := decimal.NewFromInt(20000)
	now := time.Now()

	const issuers = 25
	var wg sync.WaitGroup
	for i := 0; i < issuers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ledger.addStrike(1, penalty, now)
		}()
	}
	wg.Wait()

	strikes := ledger.strikes[1]
	if len(strikes) != issuers {
		t.Fatalf("expected %d strikes, got %d", issuers, len(strikes))
	}
	seen := map[int]bool{}
	for _, s := range strikes {
		if seen[s.StrikeNumber] {
			t.Fatalf("duplicate strike number %d", s.StrikeNumber)
		}
		seen[s.StrikeNumber] = true
	}
	for n := 1; n <= issuers; n++ {
		if !seen[n] {
			t.Fatalf("strike number sequence has a gap at %d", n)
		}
	}
	if ledger.rollups[1].CurrentStrikes != issuers {
		t.Fatalf("rollup lost updates: current_strikes = %d, want %d", ledger.rollups[1].CurrentStrikes, issuers)
	}
}

func TestConcurrentAddAndResolveKeepNMinusM(t *testing.T) {
	ledger := newFakeStrikeLedger()
	penalty := decimal.NewFromInt(20000)
	now := time.Now()

	const adds = 20
	// seed so resolves always find an active strike
	for i := 0; i < adds; i++ {
		ledger.addStrike(1, penalty, now)
	}

	const resolves = 8
	var wg sync.WaitGroup
	for i := 0; i < resolves; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ledger.resolveOldestActive(1, now)
		}()
	}
	wg.Wait()

	acct := ledger.rollups[1]
	if acct.CurrentStrikes != adds-resolves {
		t.Fatalf("current_strikes = %d, want %d", acct.CurrentStrikes, adds-resolves)
	}
	want := decimal.NewFromInt(20000 * (adds - resolves))
	if !acct.TotalPenalties.Equal(want) {
		t.Fatalf("total_penalties = %s, want %s", acct.TotalPenalties, want)
	}
}

func TestAccountantsAreIndependent(t *testing.T) {
	ledger := newFakeStrikeLedger()
	penalty := decimal.NewFromInt(20000)
	now := time.Now()

	var wg sync.WaitGroup
	for acct := 1; acct <= 4; acct++ {
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				ledger.addStrike(id, penalty, now)
			}(acct)
		}
	}
	wg.Wait()

	for acct := 1; acct <= 4; acct++ {
		if got := len(ledger.strikes[acct]); got != 6 {
			t.Fatalf("accountant %d: expected 6 strikes, got %d", acct, got)
		}
		if !ledger.rollups[acct].IsSuspended() {
			t.Fatalf("accountant %d: 6 strikes should suspend at limit 5", acct)
		}
	}
}
