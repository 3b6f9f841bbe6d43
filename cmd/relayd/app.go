package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/iorelay/internal/admin"
	"github.com/danmuck/iorelay/internal/apps"
	"github.com/danmuck/iorelay/internal/config"
	"github.com/urfave/cli/v3"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "relayd",
		Usage: "relay framed JSON session envelopes between a bridge and an application",
		Commands: []*cli.Command{
			serveCommand(),
			configCommand(),
			{
				Name:  "version",
				Usage: "print the relayd version",
				Action: func(_ context.Context, cmd *cli.Command) error {
					_, err := fmt.Fprintf(cmd.Root().Writer, "relayd %s\n", admin.Version)
					return err
				},
			},
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "open the bridge link and run the relay",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to relayd TOML config",
				Sources: cli.EnvVars("IORELAY_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "app",
				Usage: "application to run (" + strings.Join(apps.Default().Names(), ", ") + ")",
			},
			&cli.StringFlag{
				Name:  "bridge-address",
				Usage: "override [bridge] address",
			},
			&cli.StringFlag{
				Name:  "admin-addr",
				Usage: "override [admin] addr; \"off\" disables the admin server",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}
			applyFlags(&cfg, cmd)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(ctx, cfg, apps.Default())
		},
	}
}

func applyFlags(cfg *config.Config, cmd *cli.Command) {
	if v := strings.TrimSpace(cmd.String("app")); v != "" {
		cfg.App = v
	}
	if v := strings.TrimSpace(cmd.String("bridge-address")); v != "" {
		cfg.Bridge.Address = v
	}
	if cmd.IsSet("admin-addr") {
		v := strings.TrimSpace(cmd.String("admin-addr"))
		if strings.EqualFold(v, "off") {
			v = ""
		}
		cfg.Admin.Addr = v
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "manage relayd config files",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "write a commented default config",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Value: "relayd.toml", Usage: "destination file"},
					&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					path := cmd.String("path")
					if err := config.WriteTemplate(path, cmd.Bool("force")); err != nil {
						return err
					}
					_, err := fmt.Fprintf(cmd.Root().Writer, "wrote %s\n", path)
					return err
				},
			},
		},
	}
}
