package globals

import (
	"context"
	"covid19au/internal/components/chrono"
	"covid19au/internal/components/telemetry"
	"covid19au/internal/keymap"
	"covid19au/internal/pipeline"
	"covid19au/internal/scrapers/healthgov"
	"covid19au/internal/scrapers/qlik"
	"covid19au/lib/alert"
	"covid19au/lib/configutil"
	libtelemetry "covid19au/lib/telemetry"
	"errors"
	"log/slog"
	"os"
)

type RenderConfig struct {
	// Enabled renders the page in a headless browser before extraction.
	Enabled bool `json:"enabled"`
	// Remote is the control url of an already running browser.
	Remote string `json:"remote"`
}

type Config struct {
	DataDir  string `json:"data_dir"`
	Timezone string `json:"timezone"`
	// Mode is the default scrape mode, html or engine.
	Mode          string `json:"mode"`
	PageURL       string `json:"page_url"`
	LegacyPageURL string `json:"legacy_page_url"`
	EngineURL     string `json:"engine_url"`
	UserAgent     string `json:"user_agent"`
	// Registry lists registry files extending the built in one.
	Registry []string     `json:"registry"`
	Render   RenderConfig `json:"render"`
	// Schedule is the cron spec of the daemon, in Timezone.
	Schedule string       `json:"schedule"`
	Alert    alert.Config `json:"alert"`
}

func DefaultConfig() Config {
	return Config{
		DataDir:       "docs/data",
		Timezone:      chrono.DefaultLocation,
		Mode:          "html",
		PageURL:       healthgov.DefaultPageURL,
		LegacyPageURL: healthgov.LegacyPageURL,
		EngineURL:     qlik.DefaultURL,
		UserAgent:     healthgov.DefaultUserAgent,
		Schedule:      "0 19 * * *",
	}
}

// ReadConfig reads the config at path, missing fields and a missing file
// fall back to DefaultConfig.
func ReadConfig(path string) (Config, error) {
	config, err := configutil.ReadConfig[Config](path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no config found, using defaults", "path", path)
		config = Config{}
	} else if err != nil {
		return Config{}, err
	}
	return configutil.WithDefaults(config, DefaultConfig())
}

type Value struct {
	Config    Config
	Chrono    chrono.StandardImpl
	Registry  *keymap.Registry
	Tel       telemetry.API
	Telemetry libtelemetry.Telemetry
}

func (v *Value) Runner() pipeline.Runner {
	return pipeline.NewRunner(v.Config.DataDir, v.Registry, v.Tel)
}

// Fetcher builds the fetcher of a scrape mode, render forces the page to be
// rendered in a headless browser.
func (v *Value) Fetcher(mode string, render bool) (pipeline.Fetcher, error) {
	if mode == "" {
		mode = v.Config.Mode
	}
	switch mode {
	case "html":
		client, err := healthgov.NewClient(v.Config.PageURL, v.Config.UserAgent, v.Tel)
		if err != nil {
			return nil, err
		}
		var renderer healthgov.Renderer
		if render || v.Config.Render.Enabled {
			renderer = healthgov.RodRenderer{Remote: v.Config.Render.Remote}
		}
		return pipeline.NewPageFetcher(client, renderer, v.Chrono.Location(), v.Tel), nil
	case "engine":
		client, err := healthgov.NewClient(v.Config.LegacyPageURL, v.Config.UserAgent, v.Tel)
		if err != nil {
			return nil, err
		}
		engine := qlik.NewEngine(v.Config.EngineURL, client.PageURL(), v.Config.UserAgent, v.Tel)
		return pipeline.NewEngineFetcher(engine, client, v.Chrono.Location(), v.Tel), nil
	}
	return nil, errors.New("scrape mode must be html or engine")
}

type ctxKey struct{}

func Set(ctx context.Context, value *Value) context.Context {
	return context.WithValue(ctx, ctxKey{}, value)
}

func Get(ctx context.Context) *Value {
	return ctx.Value(ctxKey{}).(*Value)
}
