// valuation-export writes the current inventory valuation to an xlsx
// file. Meant for month-end spot checks against the books.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/valuation-export -out valuation.xlsx
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/models/reports"
)

func main() {
	out := flag.String("out", "valuation.xlsx", "output file path")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized. Set DB_* env vars.")
		os.Exit(1)
	}

	rows, err := reports.InventoryValuation(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "valuation query failed: %v\n", err)
		os.Exit(1)
	}
	if err := reports.ExportValuationExcel(rows, *out); err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d rows to %s\n", len(rows), *out)
}
