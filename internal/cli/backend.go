package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwizi/edge-console/internal/adminclient"
	"github.com/dwizi/edge-console/internal/app"
	"github.com/dwizi/edge-console/internal/config"
	"github.com/dwizi/edge-console/internal/store"
)

// backend is what the one-shot commands talk through. Mutations go through
// the audited client so they show up in the console's activity panel.
type backend struct {
	cfg     config.Config
	client  *adminclient.Client
	tokens  adminclient.TokenSource
	store   *store.Store
	mutator *app.AuditedClient
}

func (g *globals) openClient() (*adminclient.Client, adminclient.TokenSource, config.Config, error) {
	cfg := g.config()
	tokens, _, err := app.ResolveTokenSource(cfg, g.token)
	if err != nil {
		return nil, nil, cfg, err
	}
	client, err := adminclient.New(cfg, tokens)
	if err != nil {
		return nil, nil, cfg, fmt.Errorf("create admin client: %w", err)
	}
	return client, tokens, cfg, nil
}

// openBackend also opens the local store; callers must Close it.
func (g *globals) openBackend(logger *slog.Logger) (*backend, error) {
	client, tokens, cfg, err := g.openClient()
	if err != nil {
		return nil, err
	}
	sqlStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	return &backend{
		cfg:     cfg,
		client:  client,
		tokens:  tokens,
		store:   sqlStore,
		mutator: app.NewAuditedClient(client, sqlStore, logger.With("component", "audit")),
	}, nil
}

func (b *backend) Close() error {
	return b.store.Close()
}

func openStore(cfg config.Config) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}
	return sqlStore, nil
}

func requestContext(cmd *cobra.Command, cfg config.Config) (context.Context, context.CancelFunc) {
	timeout := cfg.RequestTimeout
	if timeout < time.Second {
		timeout = 8 * time.Second
	}
	return context.WithTimeout(cmd.Context(), timeout)
}
