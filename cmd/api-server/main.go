// Command api-server runs the storefront HTTP API.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	storefront "github.com/feralbyte/storefront/internal/app"
)

func main() {
	app.Run(serve)
}

func serve(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
	cfg, err := storefront.LoadConfig()
	if err != nil {
		return err
	}
	return storefront.Run(ctx, lg, m, cfg)
}
