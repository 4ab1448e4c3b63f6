package main

import (
	"embed"
	"flag"
	"log"

	"github.com/chazu/strata/pkg/config"
	"github.com/chazu/strata/pkg/logging"
	"github.com/chazu/strata/pkg/metrics"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"go.uber.org/zap"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	configPath := flag.String("config", "", "config file (default: user config dir)")
	flag.Parse()

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			log.Fatal(err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
	}

	app, err := NewApp(cfg, path, logger, reg)
	if err != nil {
		logger.Fatal("create app", zap.Error(err))
	}

	err = wails.Run(&options.App{
		Title:  cfg.App.Name,
		Width:  cfg.App.Width,
		Height: cfg.App.Height,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind:       []interface{}{app},
	})
	if err != nil {
		logger.Fatal("wails", zap.Error(err))
	}
}
