package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/nstogner/vivica/pkg/chat"
	"github.com/nstogner/vivica/pkg/config"
	"github.com/nstogner/vivica/pkg/credential"
	"github.com/nstogner/vivica/pkg/memory"
	"github.com/nstogner/vivica/pkg/model"
	"github.com/nstogner/vivica/pkg/model/gemini"
	"github.com/nstogner/vivica/pkg/model/openrouter"
	"github.com/nstogner/vivica/pkg/registry"
	"github.com/nstogner/vivica/pkg/state"
	"github.com/nstogner/vivica/pkg/store"
	"github.com/nstogner/vivica/pkg/store/jsonfile"
	"github.com/nstogner/vivica/pkg/store/sqlite"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg      config.Config
	store    store.Store
	state    *state.State
	primary  *gemini.Provider
	chat     *chat.Orchestrator
	registry *registry.Registry
}

func openStore(cfg config.Config) (store.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	switch cfg.Store {
	case config.StoreJSON:
		return jsonfile.New(cfg.RecordsDir())
	default:
		return sqlite.New(cfg.DBPath())
	}
}

// loadState opens the configured store and loads the application state.
func loadState(ctx context.Context) (config.Config, store.Store, *state.State, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, err
	}
	st, err := openStore(cfg)
	if err != nil {
		return cfg, nil, nil, err
	}
	s, err := state.Load(ctx, st)
	if err != nil {
		st.Close()
		return cfg, nil, nil, fmt.Errorf("loading state: %w", err)
	}
	slog.Debug("State loaded", "store", cfg.Store, "dataDir", cfg.DataDir)
	return cfg, st, s, nil
}

// resolveCredential picks the OpenRouter key: the environment first, then
// the OS keyring, then whatever settings already hold.
func resolveCredential(cfg config.Config, s *state.State) string {
	if cfg.OpenRouterAPIKey != "" {
		return cfg.OpenRouterAPIKey
	}
	if credential.Available() {
		key, err := credential.Get()
		if err != nil {
			slog.Warn("Keyring read failed", "error", err)
		} else if key != "" {
			return key
		}
	}
	return s.Settings().OpenRouterAPIKey
}

// saveCredential stores key in the keyring when one is available.
func saveCredential(key string) error {
	if !credential.Available() {
		return nil
	}
	return credential.Set(key)
}

func newApp(ctx context.Context) (*app, error) {
	cfg, st, s, err := loadState(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.GeminiAPIKey == "" {
		st.Close()
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	var opts []gemini.Option
	if cfg.GeminiBaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.GeminiBaseURL))
	}
	primary, err := gemini.New(ctx, cfg.GeminiAPIKey, opts...)
	if err != nil {
		st.Close()
		return nil, err
	}
	secondary := openrouter.New()

	key := resolveCredential(cfg, s)
	if _, err := s.SetCredential(ctx, key); err != nil {
		st.Close()
		return nil, fmt.Errorf("applying credential: %w", err)
	}

	reg := registry.New(secondary)
	if err := reg.Refresh(ctx, key); err != nil {
		slog.Warn("External model list unavailable", "error", err)
	}

	return &app{
		cfg:      cfg,
		store:    st,
		state:    s,
		primary:  primary,
		chat:     chat.New(s, model.NewRouter(primary, secondary), memory.NewSummarizer(primary)),
		registry: reg,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// resetStore deletes every stored record and returns how many were removed.
func resetStore(ctx context.Context, st store.Store) (int, error) {
	keys, err := st.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing records: %w", err)
	}
	for _, key := range keys {
		if err := st.Delete(ctx, key); err != nil {
			return 0, fmt.Errorf("deleting %s: %w", key, err)
		}
		slog.Debug("Record deleted", "key", key)
	}
	return len(keys), nil
}
