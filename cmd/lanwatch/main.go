package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"lanwatch/internal/config"
)

const appVersion = "0.3.0"

var log = logrus.New()

func main() {
	app := &cli.App{
		Name:    "lanwatch",
		Usage:   "Keep an inventory of the devices on the local network",
		Version: appVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` instead of the search path",
				EnvVars: []string{config.EnvConfigPath},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error); overrides the config file",
				EnvVars: []string{"LANWATCH_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (text, json); overrides the config file",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
		},
		Before: func(c *cli.Context) error {
			log.SetOutput(os.Stderr)
			log.SetFormatter(&logrus.TextFormatter{
				FullTimestamp:   true,
				TimestampFormat: "2006-01-02 15:04:05",
			})
			if c.Bool("no-color") {
				color.NoColor = true
			}
			return nil
		},
		Commands: []*cli.Command{
			commandRun(),
			commandScan(),
			commandHistory(),
			commandDoctor(),
			commandConfig(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

// loadConfig reads the config named by --config or found on the search
// path, then applies the logging flags. The returned path is empty when
// defaults are in use.
func loadConfig(c *cli.Context) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if p := c.String("config"); p != "" {
		cfg, path, err = config.LoadFromPath(p)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return nil, path, err
	}

	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if f := c.String("log-format"); f != "" {
		cfg.Log.Format = f
	}
	if err := configureLogger(log, cfg.Log); err != nil {
		return nil, path, err
	}

	if path != "" {
		log.WithField("path", path).Debug("Loaded config")
	} else {
		log.Debug("No config file found, using defaults")
	}
	return cfg, path, nil
}

func configureLogger(l *logrus.Logger, cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	l.SetLevel(level)

	switch cfg.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return nil
}
