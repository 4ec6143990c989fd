package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dispatchbooks/agents_backend/config"
	"github.com/dispatchbooks/agents_backend/models"
	"github.com/dispatchbooks/agents_backend/models/reports"
	"github.com/dispatchbooks/agents_backend/utils"
	"github.com/dispatchbooks/agents_backend/workflow"
)

const defaultPort = "8080"

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func bindError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

// Business-rule rejections come back as 200 + ok:false; 500 is reserved
// for infrastructure failures.
func operationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorLockNotObtained), errors.Is(err, utils.ErrorRetryConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retry": true})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func verifyPaymentRecordHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := workflow.VerifyThreeWayMatch(c.Request.Context(), logger, id, time.Now().UTC())
		if err != nil {
			operationError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func confirmPaymentRecordHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req struct {
			ReceiptPath string `json:"receipt_path" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		result, err := workflow.ConfirmPaymentRecord(c.Request.Context(), logger, id, req.ReceiptPath)
		if err != nil {
			operationError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func createPaymentRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPaymentRecord
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}
		record, err := models.CreatePaymentRecord(c.Request.Context(), &input)
		if err != nil {
			operationError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func issueStrikeHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewStrike
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}
		strike, err := workflow.AddStrike(c.Request.Context(), logger, &input, time.Now().UTC())
		if err != nil {
			operationError(c, err)
			return
		}
		c.JSON(http.StatusOK, strike)
	}
}

func resolveStrikeHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := workflow.ResolveStrike(c.Request.Context(), logger, id, time.Now().UTC())
		if err != nil {
			operationError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func createPayoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewMoneyOutCompliance
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}
		payout, err := models.CreateMoneyOutCompliance(c.Request.Context(), &input)
		if err != nil {
			operationError(c, err)
			return
		}
		c.JSON(http.StatusOK, payout)
	}
}

func setComplianceFlagHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		flag, err := models.ParseComplianceFlag(c.Param("flag"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, opErr := workflow.SetComplianceFlag(c.Request.Context(), logger, id, flag, time.Now().UTC())
		if opErr != nil {
			operationError(c, opErr)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func attachPayoutProofHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req struct {
			ProofOfPaymentPath string `json:"proof_of_payment_path" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		result, err := workflow.AttachPayoutProof(c.Request.Context(), logger, id, req.ProofOfPaymentPath)
		if err != nil {
			operationError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func markPayoutPaidHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req struct {
			OperatorId int `json:"operator_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		result, err := workflow.MarkPayoutPaid(c.Request.Context(), logger, id, req.OperatorId, time.Now().UTC())
		if err != nil {
			operationError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func overduePayoutsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		payouts, err := workflow.ListOverduePayouts(c.Request.Context(), time.Now().UTC())
		if err != nil {
			operationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(payouts), "payouts": payouts})
	}
}

func rollupDriftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		drifts, err := workflow.CheckAccountantRollups(c.Request.Context())
		if err != nil {
			operationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(drifts), "drifts": drifts})
	}
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the platform considers the revision
	// healthy. Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on dependency readiness.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(gin.Recovery())

	r.POST("/payment-records", createPaymentRecordHandler())
	r.POST("/payment-records/:id/verify", verifyPaymentRecordHandler(logger))
	r.POST("/payment-records/:id/confirm", confirmPaymentRecordHandler(logger))

	r.POST("/strikes", issueStrikeHandler(logger))
	r.POST("/strikes/:id/resolve", resolveStrikeHandler(logger))

	r.POST("/payouts", createPayoutHandler())
	r.POST("/payouts/:id/flags/:flag", setComplianceFlagHandler(logger))
	r.POST("/payouts/:id/proof", attachPayoutProofHandler(logger))
	r.POST("/payouts/:id/paid", markPayoutPaidHandler(logger))
	r.GET("/payouts/overdue", overduePayoutsHandler())

	r.GET("/internal/ops/rollup-drift", rollupDriftHandler())
	r.GET("/reports/strike-ledger.xlsx", gin.WrapF(reports.ExportStrikeLedgerExcel))
	r.GET("/reports/payout-aging.xlsx", gin.WrapF(reports.ExportPayoutAgingExcel))

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow disabling on
	// startup and running migrations as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Background overdue sweeper (observational escalation only).
	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	defer cancelSweeper()
	workflow.StartOverdueSweeper(sweeperCtx, logger)

	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop the sweeper first so it doesn't start new work while draining.
	cancelSweeper()

	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}
