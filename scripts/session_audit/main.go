package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/repository"
	"github.com/noah-isme/sma-attendance-api/internal/service"
	"github.com/noah-isme/sma-attendance-api/pkg/config"
	"github.com/noah-isme/sma-attendance-api/pkg/docstore"
	"github.com/noah-isme/sma-attendance-api/pkg/logger"
)

type report struct {
	Store     string                  `json:"store"`
	Session   models.SessionSnapshot  `json:"session"`
	Anomalies []models.SessionAnomaly `json:"anomalies"`
}

type storeOpener func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (docstore.Store, func(), error)

func main() {
	timeout := flag.Duration("timeout", 30*time.Second, "overall audit timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	code := run(ctx, cfg, logr, docstore.Open, os.Stdout, os.Stderr)
	cancel()
	_ = logr.Sync()
	os.Exit(code)
}

// run prints the audit report and returns the process exit code: 0 when the
// store is consistent, 1 when anomalies were found, 2 on failure. The store
// is closed before run returns.
func run(ctx context.Context, cfg *config.Config, logr *zap.Logger, open storeOpener, stdout, stderr io.Writer) int {
	store, closeStore, err := open(ctx, cfg, logr)
	if err != nil {
		logr.Error("open document store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
		return 2
	}
	defer closeStore()

	directory := service.NewSessionDirectory(
		repository.NewAcademicYearRepository(store),
		repository.NewSemesterRepository(store),
		nil, nil, 0, logr,
	)

	snapshot, err := directory.Current(ctx)
	if err != nil {
		logr.Error("resolve active session", zap.Error(err))
		return 2
	}
	anomalies, err := directory.Audit(ctx)
	if err != nil {
		logr.Error("audit active flags", zap.Error(err))
		return 2
	}

	out := report{Store: cfg.Store.Driver, Session: snapshot, Anomalies: anomalies}
	if out.Anomalies == nil {
		out.Anomalies = []models.SessionAnomaly{}
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logr.Error("write report", zap.Error(err))
		return 2
	}

	if len(anomalies) > 0 {
		fmt.Fprintf(stderr, "%d session anomalies found\n", len(anomalies))
		return 1
	}
	return 0
}
