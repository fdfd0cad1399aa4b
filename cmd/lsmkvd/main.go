// Command lsmkvd is the process entry point: it opens the storage
// engine and serves the HTTP surface on top of it.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/howenyap/kv"
	"github.com/howenyap/kv/internal/httpapi"
	"github.com/howenyap/kv/internal/logging"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dir := flag.String("dir", "data", "engine working directory")
	flushThreshold := flag.Int("flush-threshold", 2000, "distinct pending keys before a flush")
	compactionThreshold := flag.Int("compaction-threshold", 10000, "mutation count before a compaction")
	flag.Parse()

	logger := logging.NewDefaultLogger(logging.LevelInfo)

	opts := kv.DefaultOptions(*dir)
	opts.FlushThreshold = *flushThreshold
	opts.CompactionThreshold = *compactionThreshold
	opts.Logger = logger

	db, err := kv.Open(opts)
	if err != nil {
		logger.Errorf("%sopen failed: %v", logging.NSEngine, err)
		os.Exit(1)
	}
	defer db.Close()

	srv := &http.Server{
		Addr:    *addr,
		Handler: httpapi.New(db, logger),
	}

	go func() {
		logger.Infof("%slistening on %s", logging.NSHTTP, *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("%sserve failed: %v", logging.NSHTTP, err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Infof("%sshutting down", logging.NSHTTP)
	_ = srv.Close()
}
