// idempotency-reaper deletes expired idempotency records once and exits.
// Intended for a scheduled job when the API's in-process reaper is not enough.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/huminex/payroll_backend/config"
	"github.com/huminex/payroll_backend/models"
	"github.com/huminex/payroll_backend/workflow"
)

func main() {
	batch := flag.Int("batch", 500, "rows deleted per statement")
	timeout := flag.Duration("timeout", 5*time.Minute, "give up after this long")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reaper := workflow.NewIdempotencyReaper(models.NewIdempotencyStore(db), config.GetLogger(), time.Minute, *batch)
	n, err := reaper.SweepOnce(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep failed after deleting %d records: %v\n", n, err)
		os.Exit(1)
	}
	fmt.Printf("deleted %d expired idempotency records\n", n)
}
