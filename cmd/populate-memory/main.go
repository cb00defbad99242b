package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pharmdata/remisia_backend/config"
	"github.com/pharmdata/remisia_backend/matching"
	"github.com/pharmdata/remisia_backend/models"
	"github.com/pharmdata/remisia_backend/utils"
)

// Seeds the equivalence memory from the reference registry's generic
// groups. Safe to re-run: codes already known keep their group.
func main() {
	migrate := flag.Bool("migrate", false, "Run schema migration first")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if *migrate {
		utils.ErrorPanic(models.MigrateModels())
	}

	ctx := context.Background()
	records, err := models.ListReferenceRecords(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading reference registry: %v\n", err)
		os.Exit(1)
	}

	memory := matching.NewMemory(matching.NewGormStore(db))
	stats, err := memory.PopulateFromReference(ctx, records)
	if err != nil {
		fmt.Fprintf(os.Stderr, "populate failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%d groups processed, %d created, %d codes added\n",
		stats.GroupsProcessed, stats.GroupsCreated, stats.CodesAdded)
}
