// Command automatch runs one batch auto-match pass from the command line,
// for cron jobs and local experimentation without the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cachewarming/receipt-match-backend/internal/application/decay"
	"github.com/cachewarming/receipt-match-backend/internal/application/matching"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/config"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/logging"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/storage"
)

func main() {
	var (
		configFile string
		userID     string
		receiptIDs string
		runDecay   bool
		timeout    time.Duration
	)
	flag.StringVar(&configFile, "config", "", "Configuration file path")
	flag.StringVar(&userID, "user", "", "User ID to match for (required)")
	flag.StringVar(&receiptIDs, "receipts", "", "Comma-separated receipt IDs (default: all unmatched)")
	flag.BoolVar(&runDecay, "decay", false, "Also run one alias decay pass")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Run timeout")
	flag.Parse()

	if userID == "" {
		fmt.Fprintln(os.Stderr, "usage: automatch -user <user-id> [-receipts id1,id2] [-decay]")
		os.Exit(2)
	}

	var cfg *config.Config
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", configFile, err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrEnv()
	}

	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "automatch")

	repo, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize storage", "path", cfg.Storage.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var ids []string
	if receiptIDs != "" {
		for _, id := range strings.Split(receiptIDs, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	svc := matching.NewService(repo, cfg.Matching, logger)
	summary, err := svc.RunAutoMatch(ctx, userID, ids)
	if err != nil {
		logger.Error("auto-match run failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("processed=%d proposed=%d ambiguous=%d skipped=%d group_matches=%d\n",
		summary.Processed, summary.Proposed, summary.Ambiguous, summary.Skipped, summary.GroupMatches)

	if runDecay {
		job := decay.NewJob(repo, cfg.Decay, logger)
		decayed, err := job.RunOnce(ctx)
		if err != nil {
			logger.Error("decay run failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("aliases_decayed=%d\n", decayed)
	}
}
