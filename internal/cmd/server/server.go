// Package server parses wall server flags and wires storage, rendering, and
// the MCP transport together.
package server

import (
	"context"
	"flag"
	"log"
	"path/filepath"
	"time"

	"github.com/louisbranch/tagwall/internal/platform/config"
	"github.com/louisbranch/tagwall/internal/platform/otel"
	"github.com/louisbranch/tagwall/internal/services/mcp/service"
	"github.com/louisbranch/tagwall/internal/wall/assets"
	"github.com/louisbranch/tagwall/internal/wall/snapshot"
	"github.com/louisbranch/tagwall/internal/wall/store"
)

// Config holds wall server configuration.
type Config struct {
	HTTPAddr        string        `env:"TAGWALL_HTTP_ADDR"          envDefault:"localhost:8081"`
	Transport       string        `env:"TAGWALL_MCP_TRANSPORT"      envDefault:"http"`
	DataDir         string        `env:"TAGWALL_DATA_DIR"           envDefault:"data"`
	BackgroundPath  string        `env:"TAGWALL_BACKGROUND"         envDefault:"background.png"`
	FetchTimeout    time.Duration `env:"TAGWALL_FETCH_TIMEOUT"      envDefault:"10s"`
	SnapshotEntries int           `env:"TAGWALL_SNAPSHOT_ENTRIES"   envDefault:"64"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport type: stdio or http")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for wall state, assets, and snapshots")
	fs.StringVar(&cfg.BackgroundPath, "background", cfg.BackgroundPath, "path to the wall background image")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", cfg.FetchTimeout, "timeout for remote sticker fetches")
	fs.IntVar(&cfg.SnapshotEntries, "snapshot-entries", cfg.SnapshotEntries, "maximum snapshots kept in the render cache")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the wall server and blocks until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "tagwall")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	itemStore, err := store.Open(filepath.Join(cfg.DataDir, "wall.json"))
	if err != nil {
		return err
	}

	assetDir, err := assets.New(filepath.Join(cfg.DataDir, "assets"))
	if err != nil {
		return err
	}

	fetcher := assets.NewFetcher(cfg.FetchTimeout)
	compositor := snapshot.NewCompositor(cfg.BackgroundPath, assetDir, fetcher)

	cache, err := snapshot.OpenCache(filepath.Join(cfg.DataDir, "assets", "snapshots"), compositor, cfg.SnapshotEntries)
	if err != nil {
		return err
	}
	defer func() {
		if err := cache.Close(); err != nil {
			log.Printf("close snapshot cache: %v", err)
		}
	}()

	return service.Run(ctx, service.Config{
		Transport: service.TransportKind(cfg.Transport),
		HTTPAddr:  cfg.HTTPAddr,
		Deps: service.Deps{
			Store:     itemStore,
			Snapshots: cache,
			Blobs:     assetDir,
			Assets:    assetDir,
		},
	})
}
