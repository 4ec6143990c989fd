package workflow_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/dispatchbooks/agents_backend/config"
	"github.com/dispatchbooks/agents_backend/models"
	"github.com/dispatchbooks/agents_backend/utils"
	"github.com/dispatchbooks/agents_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestPayoutComplianceEndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "agents_test")
	t.Setenv("STRIKE_PENALTY_DEFAULT", "20000")
	t.Setenv("STRIKE_SUSPEND_LIMIT", "5")
	t.Setenv("PAYOUT_OVERDUE_HOURS", "48")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	logger := config.GetLogger()
	ctx = utils.SetUserIdInContext(ctx, 1)
	now := time.Now()

	accountant, err := models.CreateAccountant(ctx, &models.NewAccountant{
		Name:  "Chioma",
		Email: "chioma@dispatch.test",
	})
	if err != nil {
		t.Fatalf("CreateAccountant: %v", err)
	}
	agent, err := models.CreateDeliveryAgent(ctx, &models.NewDeliveryAgent{
		Name:  "Musa",
		Phone: "+2348012345678",
	})
	if err != nil {
		t.Fatalf("CreateDeliveryAgent: %v", err)
	}

	mkOrder := func(number string) *models.Order {
		t.Helper()
		order, err := models.CreateOrder(ctx, &models.NewOrder{
			OrderNumber:     number,
			DeliveryAgentId: agent.ID,
			AccountantId:    accountant.ID,
			Amount:          decimal.NewFromInt(45000),
			OrderDate:       now,
		})
		if err != nil {
			t.Fatalf("CreateOrder(%s): %v", number, err)
		}
		return order
	}

	// Mismatch path: accountant says 5, everyone else says 8.
	mismatchOrder := mkOrder("ORD-1001")
	mismatchRecord, err := models.CreatePaymentRecord(ctx, &models.NewPaymentRecord{
		OrderId:      mismatchOrder.ID,
		AccountantId: accountant.ID,
		ImSays:       "5 shampoos",
		DaSays:       "8 shampoos",
		ZohoShows:    "8 units",
	})
	if err != nil {
		t.Fatalf("CreatePaymentRecord: %v", err)
	}

	verify, err := workflow.VerifyThreeWayMatch(ctx, logger, mismatchRecord.ID, now)
	if err != nil {
		t.Fatalf("VerifyThreeWayMatch(mismatch): %v", err)
	}
	if verify.Status != models.PaymentVerificationStatusMismatch || verify.StrikeId == nil {
		t.Fatalf("expected mismatch with strike, got status=%s strike=%v", verify.Status, verify.StrikeId)
	}

	after, err := models.GetAccountant(ctx, accountant.ID)
	if err != nil {
		t.Fatalf("GetAccountant: %v", err)
	}
	if after.CurrentStrikes != 1 || !after.TotalPenalties.Equal(decimal.NewFromInt(20000)) {
		t.Fatalf("rollup after mismatch: strikes=%d penalties=%s", after.CurrentStrikes, after.TotalPenalties)
	}

	// Verifying the same record again is a no-op failure, not a second strike.
	again, err := workflow.VerifyThreeWayMatch(ctx, logger, mismatchRecord.ID, now)
	if err != nil {
		t.Fatalf("VerifyThreeWayMatch(repeat): %v", err)
	}
	if again.Ok || again.StrikeId != nil {
		t.Fatalf("repeat verification must not re-process: %+v", again)
	}

	// Happy path: matched record feeds the payout's three-way flag,
	// remaining proofs lock it, proof of payment releases it.
	paidOrder := mkOrder("ORD-1002")
	payout, err := models.CreateMoneyOutCompliance(ctx, &models.NewMoneyOutCompliance{
		OrderId:         paidOrder.ID,
		DeliveryAgentId: agent.ID,
		Amount:          decimal.NewFromInt(45000),
	})
	if err != nil {
		t.Fatalf("CreateMoneyOutCompliance: %v", err)
	}

	matchedRecord, err := models.CreatePaymentRecord(ctx, &models.NewPaymentRecord{
		OrderId:      paidOrder.ID,
		AccountantId: accountant.ID,
		ImSays:       "8 shampoos",
		DaSays:       "8 shampoos",
		ZohoShows:    "8 units",
	})
	if err != nil {
		t.Fatalf("CreatePaymentRecord(matched): %v", err)
	}
	matched, err := workflow.VerifyThreeWayMatch(ctx, logger, matchedRecord.ID, now)
	if err != nil {
		t.Fatalf("VerifyThreeWayMatch(matched): %v", err)
	}
	if !matched.Ok || matched.Status != models.PaymentVerificationStatusThreeWay {
		t.Fatalf("expected 3_way_match, got %+v", matched)
	}

	for _, flag := range []models.ComplianceFlag{
		models.ComplianceFlagPayment,
		models.ComplianceFlagOtp,
	} {
		res, err := workflow.SetComplianceFlag(ctx, logger, payout.ID, flag, now)
		if err != nil {
			t.Fatalf("SetComplianceFlag(%s): %v", flag, err)
		}
		if !res.Ok || res.NewStatus != models.ComplianceStatusReady {
			t.Fatalf("flag %s: expected ready, got %+v", flag, res)
		}
	}
	final, err := workflow.SetComplianceFlag(ctx, logger, payout.ID, models.ComplianceFlagFridayPhoto, now)
	if err != nil {
		t.Fatalf("SetComplianceFlag(friday_photo): %v", err)
	}
	if !final.Ok || final.NewStatus != models.ComplianceStatusLocked {
		t.Fatalf("expected locked after last flag, got %+v", final)
	}

	// Paying before proof is on file must soft-fail.
	premature, err := workflow.MarkPayoutPaid(ctx, logger, payout.ID, 1, now)
	if err != nil {
		t.Fatalf("MarkPayoutPaid(premature): %v", err)
	}
	if premature.Ok {
		t.Fatal("payout paid without proof of payment")
	}

	if _, err := workflow.AttachPayoutProof(ctx, logger, payout.ID, "proofs/p-1002.jpg"); err != nil {
		t.Fatalf("AttachPayoutProof: %v", err)
	}
	paid, err := workflow.MarkPayoutPaid(ctx, logger, payout.ID, 1, now)
	if err != nil {
		t.Fatalf("MarkPayoutPaid: %v", err)
	}
	if !paid.Ok || paid.NewStatus != models.ComplianceStatusPaid {
		t.Fatalf("expected paid, got %+v", paid)
	}

	// Resolution reverses the rollup, and the next strike still gets the
	// next ledger number, not a reused one.
	resolved, err := workflow.ResolveStrike(ctx, logger, *verify.StrikeId, now)
	if err != nil {
		t.Fatalf("ResolveStrike: %v", err)
	}
	if !resolved.Ok {
		t.Fatalf("expected resolution, got %+v", resolved)
	}
	after, err = models.GetAccountant(ctx, accountant.ID)
	if err != nil {
		t.Fatalf("GetAccountant(after resolve): %v", err)
	}
	if after.CurrentStrikes != 0 {
		t.Fatalf("rollup after resolve: strikes=%d", after.CurrentStrikes)
	}

	manual, err := workflow.AddStrike(ctx, logger, &models.NewStrike{
		AccountantId:  accountant.ID,
		ViolationType: string(models.ViolationTypeLateReconciliation),
		Description:   "reconciliation not submitted by close of business",
	}, now)
	if err != nil {
		t.Fatalf("AddStrike: %v", err)
	}
	if manual.StrikeNumber != 2 {
		t.Fatalf("strike number after resolve = %d, want 2", manual.StrikeNumber)
	}

	// Overdue sweep: an unpaid payout older than the window is surfaced.
	staleOrder := mkOrder("ORD-1003")
	stale, err := models.CreateMoneyOutCompliance(ctx, &models.NewMoneyOutCompliance{
		OrderId:         staleOrder.ID,
		DeliveryAgentId: agent.ID,
		Amount:          decimal.NewFromInt(12000),
	})
	if err != nil {
		t.Fatalf("CreateMoneyOutCompliance(stale): %v", err)
	}
	db := config.GetDB()
	if err := db.Model(&models.MoneyOutCompliance{}).Where("id = ?", stale.ID).
		Update("created_at", now.Add(-72*time.Hour)).Error; err != nil {
		t.Fatalf("backdate payout: %v", err)
	}

	count, err := workflow.RunOverdueSweep(ctx, logger, now)
	if err != nil {
		t.Fatalf("RunOverdueSweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("overdue sweep found %d payouts, want 1", count)
	}

	drifts, err := workflow.CheckAccountantRollups(ctx)
	if err != nil {
		t.Fatalf("CheckAccountantRollups: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("unexpected rollup drift: %+v", drifts[0])
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("agents-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("agents-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=agents_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
