// File path: cmd/progressd/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/civicworks/progressd/internal/api"
	"github.com/civicworks/progressd/internal/common"
	"github.com/civicworks/progressd/internal/report"
	"github.com/civicworks/progressd/internal/sqlite"
)

func main() {
	logger := common.Logger()

	if err := godotenv.Load(); err != nil {
		logger.Warn("progressd: .env file not loaded", "error", err)
	} else {
		logger.Info("progressd: environment loaded from .env")
	}

	addr := flag.String("addr", ":8084", "listen address")
	dbPath := flag.String("db", defaultCatalogPath(), "path to the SQLite reporting catalog")
	seedPeriods := flag.Int("seed-periods", 0, "number of quarterly reporting periods to register for the current year")
	seedYear := flag.Int("seed-year", 2026, "year used when seeding reporting periods")
	flag.Parse()

	logger.Info("progressd: startup initiated", "addr", *addr, "db", *dbPath)

	store, err := sqlite.Open(*dbPath)
	if err != nil {
		logger.Error("progressd: catalog open failed", "error", err)
		fmt.Println("catalog error:", err)
		os.Exit(1)
	}
	defer store.Close()

	if *seedPeriods > 0 {
		if err := registerPeriods(context.Background(), store, *seedPeriods, *seedYear); err != nil {
			logger.Error("progressd: period seeding failed", "error", err)
			fmt.Println("seed error:", err)
			os.Exit(1)
		}
		logger.Info("progressd: reporting periods registered", "count", *seedPeriods, "year", *seedYear)
	}

	server, err := api.NewServer(store)
	if err != nil {
		logger.Error("progressd: server construction failed", "error", err)
		fmt.Println("server error:", err)
		os.Exit(1)
	}

	logger.Info("progressd: server listening", "addr", *addr, "health", "/healthz")
	fmt.Printf("Serving on %s\n", *addr)
	reachable := *addr
	if strings.HasPrefix(reachable, ":") {
		reachable = "localhost" + reachable
	}
	logger.Info("progressd: verify reachability", "suggestion", fmt.Sprintf("curl http://%s/healthz", reachable))
	if err := http.ListenAndServe(*addr, server); err != nil {
		logger.Error("progressd: server stopped", "error", err)
		fmt.Println("server stopped:", err)
	}
}

func defaultCatalogPath() string {
	return filepath.Join("data", "reporting.db")
}

func registerPeriods(ctx context.Context, store *sqlite.Store, count, year int) error {
	for number := 1; number <= count; number++ {
		period := &report.ReportingPeriod{
			PeriodType:   "quarterly",
			PeriodNumber: number,
			Year:         year,
			IsOpen:       true,
		}
		if _, err := store.InsertPeriod(ctx, period); err != nil {
			return err
		}
	}
	return nil
}
