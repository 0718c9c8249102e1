package main

import (
	"flag"
	"fmt"
	"os"
)

// CLIConfig holds parsed command line flags.
type CLIConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	ShowVersion bool
	Validate    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config", "", "path to YAML configuration file")
	flag.StringVar(&cfg.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", "", "log format override (text, json)")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "print version and exit")
	flag.BoolVar(&cfg.Validate, "validate", false, "validate configuration and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\nFlags:\n", appName)
		flag.PrintDefaults()
	}
	flag.Parse()

	return cfg
}
