package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopdesk/db"
	"github.com/xenking/shopdesk/internal/domain/auth"
	"github.com/xenking/shopdesk/internal/domain/inventory"
	"github.com/xenking/shopdesk/internal/domain/product"
	"github.com/xenking/shopdesk/internal/storage/postgres"
)

type productJSON struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file, optionally gzipped (.gz); defaults to the embedded catalog")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed with every scope (or SHOPDESK_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOPDESK_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOPDESK_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOPDESK_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOPDESK_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := postgres.NewProductRepository(pool)
	stock := inventory.NewLedger(products, postgres.NewInventoryLogRepository(pool))
	if err := seedProducts(ctx, postgres.NewTxManager(pool), products, stock, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func readProducts(path string) ([]productJSON, error) {
	if path == "" {
		return decodeProducts(bytes.NewReader(db.Catalog))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open products file")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return decodeProducts(r)
}

func decodeProducts(r io.Reader) ([]productJSON, error) {
	var out []productJSON
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}
	return out, nil
}

// seedProducts creates the catalog with zero stock and books the initial
// stock as a purchase so every unit has a ledger entry. An existing catalog
// is left untouched.
func seedProducts(
	ctx context.Context,
	tx *postgres.TxManager,
	products *postgres.ProductRepository,
	stock *inventory.Ledger,
	path string,
) error {
	existing, err := products.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list products")
	}
	if len(existing) > 0 {
		slog.Info("catalog already seeded", slog.Int("count", len(existing)))
		return nil
	}

	if path == "" {
		slog.Info("reading embedded catalog")
	} else {
		slog.Info("reading products file", slog.String("path", path))
	}
	items, err := readProducts(path)
	if err != nil {
		return err
	}

	slog.Info("creating products", slog.Int("count", len(items)))
	return tx.InTx(ctx, func(ctx context.Context) error {
		for _, it := range items {
			p := &product.Product{Name: it.Name, Price: it.Price, Status: product.StatusOnSale}
			if err := products.Create(ctx, p); err != nil {
				return err
			}
			if it.Stock > 0 {
				if _, err := stock.Purchase(ctx, p.ID, it.Stock, "initial stock"); err != nil {
					return errors.Wrapf(err, "initial stock of %q", p.Name)
				}
			}
			slog.Info("created product", slog.Int64("id", p.ID), slog.String("name", p.Name), slog.Int("stock", it.Stock))
		}
		return nil
	})
}

func seedAPIKey(ctx context.Context, keys *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	scopes := make([]string, len(auth.AllScopes))
	for i, s := range auth.AllScopes {
		scopes[i] = string(s)
	}
	info := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.Hash([]byte(pepper), apiKey),
		Name:    "Default back-office key",
		Scopes:  scopes,
	}
	if err := keys.Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.Any("scopes", scopes))
	return nil
}
