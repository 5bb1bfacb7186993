// Command nextgen-smoke authenticates against NextGen and lists the master
// code categories, or the codes of the category given as the first argument.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/Checker-Finance/nextgen-api/pkg/config"
	"github.com/Checker-Finance/nextgen-api/pkg/logger"
	"github.com/Checker-Finance/nextgen-api/pkg/nextgen"
	"github.com/Checker-Finance/nextgen-api/pkg/secrets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger.Init("nextgen-smoke", cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()

	if cfg.SecretName != "" {
		provider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		if err := secrets.ApplyCredentials(ctx, provider, cfg.SecretName, &cfg.NextGen); err != nil {
			logg.Fatalw("failed to load nextgen credentials", "error", err)
		}
	}

	client, err := nextgen.New(cfg.NextGen, logger.L())
	if err != nil {
		logg.Fatalw("invalid nextgen configuration", "error", err)
	}
	defer client.Close() //nolint:errcheck

	logg.Infow("client", "info", client.Info())
	if !client.Authenticate(ctx) {
		logg.Fatal("authentication failed")
	}

	var out any
	if len(os.Args) > 1 {
		out, err = client.Master().CodeDetails(ctx, os.Args[1])
	} else {
		out, err = client.Master().Codes(ctx)
	}
	if err != nil {
		logg.Fatalw("request failed", "kind", nextgen.KindOf(err).String(), "error", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logg.Fatalw("encode output", "error", err)
	}
}
