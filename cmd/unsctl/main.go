// Command unsctl is a CLI binding for the Local Store API (spec §6) —
// the same operations main.go's HTTP server exposes, called directly
// against a local store/NNTP pool without a running server.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rorocorp/uns/config"
	"github.com/rorocorp/uns/system"
)

func newSystem(ctx context.Context, log *zap.Logger) (*system.System, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		return nil, fmt.Errorf("derive store config: %w", err)
	}
	return system.New(ctx, system.Config{
		Store:            storeCfg,
		NNTP:             cfg.NNTPConfig(),
		CacheDir:         cfg.CacheDir,
		SegmentSize:      cfg.SegmentSize,
		UploadWorkers:    cfg.UploadWorkers,
		DownloadWorkers:  cfg.DownloadWorkers,
		RedundancyCopies: cfg.RedundancyCopies,
		UploadBPS:        cfg.UploadBPS,
		From:             cfg.NNTPFrom,
		Newsgroups:       []string{cfg.NNTPGroup},
	}, log)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
