package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/feralbyte/storefront/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
)

// productRecord is one line of a supplier feed file.
type productRecord struct {
	Name             string          `json:"name"`
	ImageURL         string          `json:"image_url"`
	Price            decimal.Decimal `json:"price"`
	Category         string          `json:"category"`
	DescriptionShort string          `json:"description_short"`
	DescriptionLong  string          `json:"description_long"`
}

// fileResult holds the parsed records of a single feed file, in file order.
type fileResult struct {
	records []productRecord
	skipped uint64
}

const upsertProductSQL = `
INSERT INTO products (name, image_url, price, category, description_short, description_long)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (name) DO UPDATE SET
    image_url         = EXCLUDED.image_url,
    price             = EXCLUDED.price,
    category          = EXCLUDED.category,
    description_short = EXCLUDED.description_short,
    description_long  = EXCLUDED.description_long`

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz feed files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "list feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz feed files in %s", dataDir)
	}
	// Earlier files win when feeds disagree on a product.
	sort.Strings(files)

	slog.Info("parsing feed files", slog.Int("files", len(files)))

	results, err := parseFeeds(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse feeds")
	}

	products := dedupe(results)

	slog.Info("unique products found", slog.Int("count", len(products)))

	if len(products) == 0 {
		slog.Info("no products to import")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeProducts(ctx, pool, products); err != nil {
		return errors.Wrap(err, "write products to database")
	}

	return nil
}

// parseFeeds streams and parses all feed files concurrently.
func parseFeeds(ctx context.Context, files []string) ([]fileResult, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(parseFeedFile(ctx, i, f, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func parseFeedFile(ctx context.Context, idx int, path string, results []fileResult) func() error {
	return func() error {
		var (
			records []productRecord
			skipped uint64
			count   uint64
		)

		if err := streamGzFile(ctx, path, func(line []byte) {
			count++
			if count%progressEvery == 0 {
				slog.Info("parse progress",
					slog.String("file", filepath.Base(path)),
					slog.Uint64("lines", count),
				)
			}

			var rec productRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				skipped++
				return
			}
			if rec.Name == "" || rec.Price.IsNegative() {
				skipped++
				return
			}
			records = append(records, rec)
		}); err != nil {
			return errors.Wrapf(err, "parse feed %s", path)
		}

		slog.Info("parse complete",
			slog.String("file", filepath.Base(path)),
			slog.Int("records", len(records)),
			slog.Uint64("skipped", skipped),
		)

		results[idx] = fileResult{records: records, skipped: skipped}
		return nil
	}
}

// dedupe merges feed results in file order, keeping the first occurrence of
// each product name. The bloom filter answers most "seen before?" checks
// without touching the exact map; a positive is confirmed against the map
// since bloom lookups can report false positives.
func dedupe(results []fileResult) []productRecord {
	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	seen := make(map[string]struct{})

	var merged []productRecord
	for _, r := range results {
		for _, rec := range r.records {
			if filter.TestString(rec.Name) {
				if _, dup := seen[rec.Name]; dup {
					continue
				}
			}
			filter.AddString(rec.Name)
			seen[rec.Name] = struct{}{}
			merged = append(merged, rec)
		}
	}

	return merged
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Bytes())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeProducts upserts all imported products into the catalog.
func writeProducts(ctx context.Context, pool *pgxpool.Pool, products []productRecord) error {
	slog.Info("writing products to database", slog.Int("count", len(products)))

	for i, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.Name, p.ImageURL, p.Price, p.Category, p.DescriptionShort, p.DescriptionLong,
		); err != nil {
			return errors.Wrapf(err, "upsert product %q", p.Name)
		}

		if (i+1)%100 == 0 || i+1 == len(products) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(products)))
		}
	}

	return nil
}
