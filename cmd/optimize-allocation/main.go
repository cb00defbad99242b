package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pharmdata/remisia_backend/allocation"
	"github.com/pharmdata/remisia_backend/appctx"
	"github.com/pharmdata/remisia_backend/config"
	"github.com/pharmdata/remisia_backend/workflow"
)

func main() {
	importId := flag.Int("import-id", 0, "Required: sale import to optimize")
	objectivesJson := flag.String("objectives", "", "JSON array of laboratory objectives")
	timeLimit := flag.Duration("time-limit", allocation.DefaultTimeLimit, "Search wall-clock limit")
	combo := flag.Bool("combo", false, "Run the greedy combo suggestion instead of the exact search")
	primaryLab := flag.Int("primary-lab", 0, "Seed laboratory for the combo suggestion")
	maxLabs := flag.Int("max-labs", 3, "Laboratory count cap for the combo suggestion")
	flag.Parse()

	if *importId == 0 {
		fmt.Fprintln(os.Stderr, "--import-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := appctx.Set(context.Background(), appctx.ContextKeyImportId, *importId)

	if *combo {
		result, err := workflow.SuggestCombo(ctx, *importId, *primaryLab, *maxLabs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "combo suggestion failed: %v\n", err)
			os.Exit(1)
		}
		printJson(result)
		return
	}

	var inputs []*allocation.NewObjective
	if *objectivesJson != "" {
		if err := json.Unmarshal([]byte(*objectivesJson), &inputs); err != nil {
			fmt.Fprintf(os.Stderr, "bad --objectives: %v\n", err)
			os.Exit(1)
		}
	}

	started := time.Now()
	result, err := workflow.OptimizeImport(ctx, *importId, inputs, *timeLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "optimization failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "status %s after %s (%d nodes)\n", result.Status, time.Since(started), result.Nodes)
	printJson(result)
}

func printJson(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}
