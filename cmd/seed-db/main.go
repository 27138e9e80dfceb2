package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/feralbyte/storefront/internal/repository"
)

type productJSON struct {
	Name             string          `json:"name"`
	ImageURL         string          `json:"image_url"`
	Price            decimal.Decimal `json:"price"`
	Category         string          `json:"category"`
	DescriptionShort string          `json:"description_short"`
	DescriptionLong  string          `json:"description_long"`
}

const (
	upsertProductSQL = `
INSERT INTO products (name, image_url, price, category, description_short, description_long)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (name) DO UPDATE SET
    image_url         = EXCLUDED.image_url,
    price             = EXCLUDED.price,
    category          = EXCLUDED.category,
    description_short = EXCLUDED.description_short,
    description_long  = EXCLUDED.description_long`

	upsertUserSQL = `
INSERT INTO users (email, staff)
VALUES ($1, $2)
ON CONFLICT (email) DO UPDATE SET staff = EXCLUDED.staff
RETURNING id`

	upsertTokenSQL = `
INSERT INTO auth_tokens (user_id, token_hash, name, active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (token_hash) DO UPDATE SET active = TRUE`

	seedCartItemSQL = `
INSERT INTO cart_items (user_id, product_id, quantity)
SELECT $1, id, 1 FROM products ORDER BY id LIMIT 1
ON CONFLICT (user_id, product_id) DO NOTHING`
)

func main() {
	var (
		databaseURL  string
		productsFile string
		customerTok  string
		staffTok     string
		tokenPepper  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&customerTok, "customer-token", "", "bearer token to seed for the default customer (or STOREFRONT_SEED_TOKEN env)")
	flag.StringVar(&staffTok, "staff-token", "", "bearer token to seed for the staff account (or STOREFRONT_SEED_STAFF_TOKEN env)")
	flag.StringVar(&tokenPepper, "token-pepper", "", "HMAC pepper for token hashing (or STOREFRONT_TOKEN_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if customerTok == "" {
		customerTok = os.Getenv("STOREFRONT_SEED_TOKEN")
	}
	if customerTok == "" {
		slog.Error("customer token is required: set --customer-token or STOREFRONT_SEED_TOKEN")
		os.Exit(1)
	}
	if staffTok == "" {
		staffTok = os.Getenv("STOREFRONT_SEED_STAFF_TOKEN")
	}
	if tokenPepper == "" {
		tokenPepper = os.Getenv("STOREFRONT_TOKEN_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, customerTok, staffTok, tokenPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, customerTok, staffTok, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	customerID, err := seedUser(ctx, pool, "customer@example.com", false, customerTok, pepper, "Default customer token")
	if err != nil {
		return errors.Wrap(err, "seed customer")
	}

	if staffTok != "" {
		if _, err := seedUser(ctx, pool, "staff@example.com", true, staffTok, pepper, "Staff token"); err != nil {
			return errors.Wrap(err, "seed staff user")
		}
	}

	if err := seedCart(ctx, pool, customerID); err != nil {
		return errors.Wrap(err, "seed cart")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.Name, p.ImageURL, p.Price, p.Category, p.DescriptionShort, p.DescriptionLong,
		); err != nil {
			return errors.Wrapf(err, "upsert product %q", p.Name)
		}

		slog.Info("upserted product", slog.String("name", p.Name), slog.String("price", p.Price.String()))
	}

	return nil
}

func seedUser(ctx context.Context, pool *pgxpool.Pool, email string, staff bool, token, pepper, tokenName string) (int64, error) {
	slog.Info("seeding user", slog.String("email", email), slog.Bool("staff", staff))

	var userID int64
	if err := pool.QueryRow(ctx, upsertUserSQL, email, staff).Scan(&userID); err != nil {
		return 0, errors.Wrapf(err, "upsert user %s", email)
	}

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(token))
	tokenHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertTokenSQL, userID, tokenHash, tokenName); err != nil {
		return 0, errors.Wrapf(err, "upsert token for %s", email)
	}

	slog.Info("upserted token", slog.Int64("user_id", userID), slog.String("name", tokenName))

	return userID, nil
}

// seedCart puts one unit of the first catalog product in the customer's cart
// so a fresh environment has something to check out.
func seedCart(ctx context.Context, pool *pgxpool.Pool, userID int64) error {
	if _, err := pool.Exec(ctx, seedCartItemSQL, userID); err != nil {
		return errors.Wrap(err, "insert starter cart item")
	}

	slog.Info("seeded starter cart", slog.Int64("user_id", userID))

	return nil
}
