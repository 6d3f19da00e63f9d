package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"lanwatch/internal/config"
	"lanwatch/internal/core/preflight"
	"lanwatch/internal/watcher"
)

// commandRun keeps the inventory fresh until interrupted
func commandRun() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Refresh the inventory continuously",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "range",
				Aliases: []string{"r"},
				Usage:   "Scan `CIDR` instead of the detected subnet",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Do not print the device table after each round",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, cfgPath, err := loadConfig(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := buildPipeline(ctx, cfg, c.String("range"), log)
			if err != nil {
				return err
			}
			defer p.Close()

			p.restore(ctx, cfg, log)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return p.publisher.Run(ctx)
			})

			if cfgPath != "" {
				reload := watcher.ConfigReloader(cfgPath, p.applyConfig, log)
				w := watcher.New(cfgPath, reload, log)
				g.Go(func() error {
					if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
						log.WithError(err).Warn("Config watcher stopped")
					}
					return nil
				})
			}

			if !c.Bool("quiet") {
				updates, unsubscribe := p.publisher.Subscribe(1)
				defer unsubscribe()
				g.Go(func() error {
					for {
						select {
						case <-ctx.Done():
							return nil
						case snap, ok := <-updates:
							if !ok {
								return nil
							}
							printSnapshot(os.Stdout, snap)
						}
					}
				})
			}

			color.Green("lanwatch %s running, press Ctrl+C to stop", appVersion)
			err = g.Wait()
			log.Info("Stopped")
			return err
		},
	}
}

// commandScan runs one round and prints the result
func commandScan() *cli.Command {
	return &cli.Command{
		Name:    "scan",
		Aliases: []string{"s"},
		Usage:   "Run a single discovery round",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "range",
				Aliases: []string{"r"},
				Usage:   "Scan `CIDR` instead of the detected subnet",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the snapshot as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, _, err := loadConfig(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := buildPipeline(ctx, cfg, c.String("range"), log)
			if err != nil {
				return err
			}
			defer p.Close()

			snap, err := p.publisher.Refresh(ctx)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			printSnapshot(os.Stdout, snap)
			return nil
		},
	}
}

// commandHistory reads the snapshot store
func commandHistory() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show stored inventory snapshots",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   10,
				Usage:   "Show at most `N` snapshots",
			},
			&cli.StringFlag{
				Name:  "show",
				Usage: "Print the devices of snapshot `ID`",
			},
			&cli.BoolFlag{
				Name:  "sightings",
				Usage: "List every address ever seen with first and last sighting",
			},
			&cli.IntFlag{
				Name:  "prune",
				Usage: "Delete all but the newest `N` snapshots",
				Value: -1,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, _, err := loadConfig(c)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := c.Context
			switch {
			case c.Int("prune") >= 0:
				n, err := store.Prune(ctx, c.Int("prune"))
				if err != nil {
					return err
				}
				color.Green("Removed %d snapshots", n)
				return nil

			case c.String("show") != "":
				snap, err := store.GetSnapshot(ctx, c.String("show"))
				if err != nil {
					return err
				}
				if snap == nil {
					return fmt.Errorf("snapshot %q not found", c.String("show"))
				}
				printSnapshot(os.Stdout, snap)
				return nil

			case c.Bool("sightings"):
				sightings, err := store.ListSightings(ctx)
				if err != nil {
					return err
				}
				printSightings(os.Stdout, sightings)
				return nil
			}

			summaries, err := store.ListSnapshots(ctx, c.Int("limit"))
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				color.Yellow("No snapshots stored yet")
				return nil
			}
			printSummaries(os.Stdout, summaries)
			return nil
		},
	}
}

// commandDoctor reports what discovery can do on this host
func commandDoctor() *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Check privileges and tools used by discovery",
		Action: func(c *cli.Context) error {
			cfg, _, err := loadConfig(c)
			if err != nil {
				return err
			}

			report := preflight.SystemProbes().Run(c.Context)
			for _, check := range report.Checks {
				mark := color.GreenString("ok  ")
				if !check.OK {
					mark = color.YellowString("warn")
				}
				fmt.Printf("%s  %-15s %s\n", mark, check.Name, check.Detail)
			}

			notes := report.Adjust(cfg)
			if len(notes) == 0 {
				color.Green("Configuration is fully supported")
				return nil
			}
			for _, note := range notes {
				color.Yellow("- %s", note)
			}
			return nil
		},
	}
}

// commandConfig manages the config file
func commandConfig() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Create or inspect the configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a default config file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Usage: "Write to `FILE` instead of the default location",
					},
					&cli.StringFlag{
						Name:  "posture",
						Value: string(config.PostureBalanced),
						Usage: "Behavior posture (stealth, cautious, balanced, aggressive)",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: func(c *cli.Context) error {
					path := c.String("path")
					if path == "" {
						path = config.DefaultConfigPath()
					}
					if _, err := os.Stat(path); err == nil && !c.Bool("force") {
						return fmt.Errorf("%s already exists (use --force to overwrite)", path)
					}

					cfg := config.DefaultConfig()
					cfg.Posture = config.ParsePosture(c.String("posture"))
					if err := cfg.Save(path); err != nil {
						return err
					}
					color.Green("Wrote %s", path)
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Print the effective configuration",
				Action: func(c *cli.Context) error {
					cfg, path, err := loadConfig(c)
					if err != nil {
						return err
					}
					if path == "" {
						color.Yellow("# no config file found, showing defaults")
					} else {
						color.Yellow("# %s", path)
					}

					out := struct {
						config.Config `yaml:",inline"`
						Effective     config.BehaviorProfile `yaml:"effective_behavior"`
					}{*cfg, cfg.EffectiveBehavior()}
					enc := yaml.NewEncoder(os.Stdout)
					enc.SetIndent(2)
					defer enc.Close()
					return enc.Encode(out)
				},
			},
		},
	}
}
