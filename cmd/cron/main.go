package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cryptodash-api/internal/cli"
	"cryptodash-api/internal/config"
	"cryptodash-api/internal/svc"
	"cryptodash-api/pkg/marketdata"
)

const (
	retentionInterval = time.Hour        // How often stale rows are purged
	shutdownTimeout   = 10 * time.Second // Grace period for shutdown
)

var (
	configFile = flag.String("f", "etc/cryptodash.yaml", "the config file")
	retention  = flag.Duration("retention", 30*24*time.Hour, "delete persisted charts older than this; 0 keeps everything")
	once       = flag.Bool("once", false, "warm the watch list once and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting chart warmer...")

	appCfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("[main] Failed to load app config: %v", err)
	}

	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(appCfg) {
		log.Printf("  - %s", line)
	}

	sc, err := svc.New(*appCfg)
	if err != nil {
		log.Fatalf("[main] Failed to build service context: %v", err)
	}
	defer sc.Stop()

	poller := marketdata.NewPoller(sc.Fetcher, sc.MarketConfig.Watch, marketdata.WithPollReporter(reportPoll))
	if len(poller.Requests()) == 0 {
		log.Fatalf("[main] Watch list is empty, nothing to warm")
	}
	log.Printf("  - Watched charts: %d", len(poller.Requests()))
	log.Printf("  - Sources: %v", sc.Fetcher.SourceNames())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		poller.PollOnce(ctx)
		purge(ctx, sc)
		log.Println("[main] Single pass complete")
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	if sc.MarketChartsModel != nil && *retention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runRetention(ctx, sc)
		}()
	}

	log.Println("[main] Chart warmer started. Press Ctrl+C to stop.")
	<-ctx.Done()
	log.Println("[main] Shutdown signal received, stopping tasks...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[main] All tasks stopped cleanly")
	case <-time.After(shutdownTimeout):
		log.Println("[main] Shutdown timeout exceeded, forcing exit")
	}
}

// reportPoll logs one line per warmed chart.
func reportPoll(r marketdata.PollReport) {
	key := r.Request.Key()
	took := r.Elapsed.Milliseconds()
	switch {
	case r.Err != nil:
		log.Printf("[warm.%s] [ERROR] %v, took %dms", key, r.Err, took)
	case r.Result.IsMockData:
		log.Printf("[warm.%s] [WARN] every source failed, mock data served, took %dms", key, took)
	case r.Result.Stale:
		log.Printf("[warm.%s] [WARN] stale chart from %s, took %dms", key, r.Result.Source, took)
	default:
		log.Printf("[warm.%s] [OK] source=%s points=%d last=%.4f cached=%t, took %dms",
			key, r.Result.Source, len(r.Result.Chart.Prices), r.Result.Chart.Last(), r.Result.FromCache, took)
	}
}

func runRetention(ctx context.Context, sc *svc.ServiceContext) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	purge(ctx, sc)
	for {
		select {
		case <-ctx.Done():
			log.Println("[retention] Stopping retention task")
			return
		case <-ticker.C:
			purge(ctx, sc)
		}
	}
}

func purge(ctx context.Context, sc *svc.ServiceContext) {
	if sc.MarketChartsModel == nil || *retention <= 0 || ctx.Err() != nil {
		return
	}
	cutoff := time.Now().Add(-*retention)
	deleted, err := sc.MarketChartsModel.DeleteFetchedBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[retention] [ERROR] %v", err)
		return
	}
	log.Printf("[retention] [OK] deleted %d charts fetched before %s", deleted, cutoff.Format(time.RFC3339))
}
