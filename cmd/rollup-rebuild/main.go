package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dispatchbooks/agents_backend/config"
	"github.com/dispatchbooks/agents_backend/models"
	"github.com/dispatchbooks/agents_backend/workflow"
)

// rollup-rebuild recomputes accountant strike rollups (current_strikes,
// total_penalties) from the strike ledger. The rollups are maintained
// inside serialized transactions, but this tool exists as the safeguard
// for historical drift and for recovery after manual data fixes.
//
// Usage:
//
//	rollup-rebuild                    report drift only
//	rollup-rebuild -apply             rebuild drifted accountants
//	rollup-rebuild -accountant-id 42  limit to one accountant
func main() {
	accountantID := flag.Int("accountant-id", 0, "Optional: limit to one accountant.")
	apply := flag.Bool("apply", false, "Rebuild rollups for drifted accountants (default: report only).")
	flag.Parse()

	ctx := context.Background()
	logger := config.GetLogger()

	// Explicit DB connect (config does not connect DB in init()).
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	// Ensure schema is up-to-date.
	models.MigrateTable()

	drifts, err := workflow.CheckAccountantRollups(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to check rollups: %v\n", err)
		os.Exit(1)
	}

	var targets []int
	for _, d := range drifts {
		if *accountantID > 0 && d.AccountantId != *accountantID {
			continue
		}
		targets = append(targets, d.AccountantId)
		fmt.Printf("accountant %d: strikes recorded=%d ledger=%d, penalties recorded=%s ledger=%s\n",
			d.AccountantId, d.RecordedStrikes, d.LedgerStrikes,
			d.RecordedPenalties.String(), d.LedgerPenalties.String())
	}

	if len(targets) == 0 {
		fmt.Println("no rollup drift found")
		return
	}
	if !*apply {
		fmt.Printf("%d accountant(s) drifted; re-run with -apply to rebuild\n", len(targets))
		return
	}

	updated, err := workflow.RebuildAccountantRollups(ctx, logger, targets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild stopped after %d accountant(s): %v\n", updated, err)
		os.Exit(1)
	}
	fmt.Printf("rebuilt rollups for %d accountant(s)\n", updated)
}
