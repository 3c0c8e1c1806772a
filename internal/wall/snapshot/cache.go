package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"github.com/louisbranch/tagwall/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/tagwall/internal/wall"
	"github.com/louisbranch/tagwall/internal/wall/snapshot/migrations"
)

var tracer = otel.Tracer("github.com/louisbranch/tagwall/internal/wall/snapshot")

// DefaultMaxEntries bounds the snapshot cache. The original behaviour
// kept every artifact forever; a count-capped LRU keeps the render cost
// amortised while preventing unbounded disk growth.
const DefaultMaxEntries = 64

// Artifact is a cached rendered snapshot plus its recorded metadata.
type Artifact struct {
	Fingerprint   string
	Path          string
	Width         int
	Height        int
	ItemCount     int
	SkippedImages int
}

// renderer produces the raster for a state; the compositor implements
// it, and tests substitute counting fakes.
type renderer interface {
	RenderItems(ctx context.Context, items []wall.Item) (Render, error)
}

// Cache stores rendered snapshots as PNG files keyed by fingerprint,
// with metadata and recency tracked in a SQLite index. Concurrent
// requests for one fingerprint share a single in-flight render.
type Cache struct {
	dir        string
	db         *sql.DB
	renderer   renderer
	group      singleflight.Group
	maxEntries int

	now func() time.Time
}

// OpenCache prepares the snapshot directory and its SQLite index. A
// non-positive maxEntries falls back to DefaultMaxEntries.
func OpenCache(dir string, r renderer, maxEntries int) (*Cache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("snapshot directory is required")
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	cleanDir := filepath.Clean(dir)
	if err := os.MkdirAll(cleanDir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	dsn := filepath.Join(cleanDir, "cache.db") + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snapshot index: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping snapshot index: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run snapshot index migrations: %w", err)
	}

	return &Cache{
		dir:        cleanDir,
		db:         db,
		renderer:   r,
		maxEntries: maxEntries,
		now:        time.Now,
	}, nil
}

// Close closes the SQLite index.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Snapshot returns the artifact for the given state, rendering at most
// once per distinct fingerprint. A hit only touches the recency column;
// a miss renders, persists the PNG, records the metadata, and evicts
// the least recently used entries beyond the cap.
func (c *Cache) Snapshot(ctx context.Context, items []wall.Item) (Artifact, error) {
	ctx, span := tracer.Start(ctx, "snapshot.Snapshot")
	defer span.End()

	fingerprint := Fingerprint(items)
	span.SetAttributes(attribute.String("snapshot.fingerprint", fingerprint))

	value, err, _ := c.group.Do(fingerprint, func() (any, error) {
		if artifact, ok, err := c.lookup(ctx, fingerprint); err != nil {
			return Artifact{}, err
		} else if ok {
			span.SetAttributes(attribute.Bool("snapshot.cache_hit", true))
			return artifact, nil
		}
		span.SetAttributes(attribute.Bool("snapshot.cache_hit", false))

		renderCtx, renderSpan := tracer.Start(ctx, "snapshot.Render")
		render, err := c.renderer.RenderItems(renderCtx, items)
		if err != nil {
			renderSpan.RecordError(err)
			renderSpan.End()
			return Artifact{}, err
		}
		renderSpan.SetAttributes(
			attribute.Int("snapshot.item_count", render.ItemCount),
			attribute.Int("snapshot.skipped_images", render.SkippedImages),
		)
		renderSpan.End()

		fileName := fingerprint + ".png"
		path := filepath.Join(c.dir, fileName)
		if err := os.WriteFile(path, render.PNG, 0o644); err != nil {
			return Artifact{}, fmt.Errorf("write snapshot %s: %w", fileName, err)
		}

		now := c.now().UTC().UnixMilli()
		if _, err := c.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO snapshots
			   (fingerprint, file_name, width, height, item_count, skipped_images, rendered_at, last_access)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			fingerprint, fileName, render.Width, render.Height,
			render.ItemCount, render.SkippedImages, now, now,
		); err != nil {
			return Artifact{}, fmt.Errorf("record snapshot %s: %w", fingerprint, err)
		}

		if err := c.evict(ctx); err != nil {
			return Artifact{}, err
		}

		return Artifact{
			Fingerprint:   fingerprint,
			Path:          path,
			Width:         render.Width,
			Height:        render.Height,
			ItemCount:     render.ItemCount,
			SkippedImages: render.SkippedImages,
		}, nil
	})
	if err != nil {
		return Artifact{}, err
	}
	return value.(Artifact), nil
}

// lookup finds a recorded artifact whose file still exists, bumping its
// recency. A stale row whose file vanished is dropped so the caller
// re-renders.
func (c *Cache) lookup(ctx context.Context, fingerprint string) (Artifact, bool, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT file_name, width, height, item_count, skipped_images
		   FROM snapshots WHERE fingerprint = ?`, fingerprint)

	var artifact Artifact
	var fileName string
	err := row.Scan(&fileName, &artifact.Width, &artifact.Height, &artifact.ItemCount, &artifact.SkippedImages)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, false, nil
	}
	if err != nil {
		return Artifact{}, false, fmt.Errorf("lookup snapshot %s: %w", fingerprint, err)
	}

	path := filepath.Join(c.dir, fileName)
	if _, err := os.Stat(path); err != nil {
		_, _ = c.db.ExecContext(ctx, `DELETE FROM snapshots WHERE fingerprint = ?`, fingerprint)
		return Artifact{}, false, nil
	}

	if _, err := c.db.ExecContext(ctx,
		`UPDATE snapshots SET last_access = ? WHERE fingerprint = ?`,
		c.now().UTC().UnixMilli(), fingerprint,
	); err != nil {
		return Artifact{}, false, fmt.Errorf("touch snapshot %s: %w", fingerprint, err)
	}

	artifact.Fingerprint = fingerprint
	artifact.Path = path
	return artifact, true, nil
}

// evict removes artifacts beyond the cap, oldest access first.
func (c *Cache) evict(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx,
		`SELECT fingerprint, file_name FROM snapshots
		  ORDER BY last_access DESC, fingerprint
		  LIMIT -1 OFFSET ?`, c.maxEntries)
	if err != nil {
		return fmt.Errorf("select evictable snapshots: %w", err)
	}
	defer rows.Close()

	type victim struct{ fingerprint, fileName string }
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.fingerprint, &v.fileName); err != nil {
			return fmt.Errorf("scan evictable snapshot: %w", err)
		}
		victims = append(victims, v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("select evictable snapshots: %w", err)
	}

	for _, v := range victims {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM snapshots WHERE fingerprint = ?`, v.fingerprint); err != nil {
			return fmt.Errorf("evict snapshot %s: %w", v.fingerprint, err)
		}
		if err := os.Remove(filepath.Join(c.dir, v.fileName)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove snapshot file %s: %w", v.fileName, err)
		}
	}
	return nil
}
