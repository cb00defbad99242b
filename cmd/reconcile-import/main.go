package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pharmdata/remisia_backend/appctx"
	"github.com/pharmdata/remisia_backend/config"
	"github.com/pharmdata/remisia_backend/matching"
	"github.com/pharmdata/remisia_backend/models"
	"github.com/pharmdata/remisia_backend/utils"
	"github.com/pharmdata/remisia_backend/workflow"
)

func main() {
	importId := flag.Int("import-id", 0, "Required: sale import to reconcile")
	minScore := flag.Float64("min-score", 0, "Override the default candidate threshold")
	migrate := flag.Bool("migrate", false, "Run schema migration first")
	flag.Parse()

	if *importId == 0 {
		fmt.Fprintln(os.Stderr, "--import-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedis()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if *migrate {
		utils.ErrorPanic(models.MigrateModels())
	}

	providers := models.GormProviders{}
	memory := matching.NewMemory(matching.NewGormStore(db))
	service := matching.NewService(providers, providers, memory)

	ctx := appctx.Set(context.Background(), appctx.ContextKeyImportId, *importId)
	summary, err := workflow.ReconcileImport(ctx, service, *importId, *minScore)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconciliation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("import %d: %d lines, %d matched, %d unmatched, %d match rows, %d codes auto-validated\n",
		summary.ImportId, summary.Lines, summary.Matched, summary.Unmatched,
		summary.MatchesSaved, summary.AutoValidated)
}
