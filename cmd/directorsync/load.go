package main

import (
	"strings"

	"pkt.systems/directorsync/internal/appconfig"
)

type loadOptions struct {
	path     string
	endpoint string
	httpAddr string
}

func loadConfig(opts loadOptions) (appconfig.Config, error) {
	cfg, err := appconfig.Load(opts.path)
	if err != nil {
		return appconfig.Config{}, err
	}
	if value := strings.TrimSpace(opts.endpoint); value != "" {
		cfg.Endpoint.URL = value
	}
	if value := strings.TrimSpace(opts.httpAddr); value != "" {
		cfg.HTTP.Addr = value
	}
	if err := appconfig.Validate(cfg); err != nil {
		return appconfig.Config{}, err
	}
	return cfg, nil
}
