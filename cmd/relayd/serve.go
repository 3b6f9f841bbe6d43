package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/iorelay/internal/admin"
	"github.com/danmuck/iorelay/internal/apps"
	"github.com/danmuck/iorelay/internal/config"
	"github.com/danmuck/iorelay/internal/logging"
	"github.com/danmuck/iorelay/internal/relay"
	"github.com/danmuck/iorelay/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// serve runs the admin server and the relay until ctx is done or the bridge
// link is lost.
func serve(ctx context.Context, cfg config.Config, registry *apps.Registry) error {
	lc := cfg.Logging()
	logging.ApplyEnvOverrides(&lc)
	logging.Apply(lc)
	defer logging.Close()

	handler, err := registry.New(cfg.App)
	if err != nil {
		return err
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}

	log.Info().
		Str("relay", id).
		Str("app", cfg.App).
		Str("network", cfg.Bridge.Network).
		Str("mode", cfg.Bridge.Mode).
		Str("address", cfg.Bridge.Address).
		Msg("relayd starting")

	g, gctx := errgroup.WithContext(ctx)

	var adm *admin.Server
	if cfg.Admin.Addr != "" {
		adm = admin.New(id, cfg.App, admin.Options{
			CorsOrigins: cfg.Admin.CorsOrigins,
			Token:       cfg.Admin.Token,
		})
		g.Go(func() error {
			return adm.Serve(gctx, cfg.Admin.Addr)
		})
	}

	g.Go(func() error {
		conn, err := transport.Open(gctx, cfg.Bridge)
		if err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("open bridge link: %w", err)
		}
		r := relay.New(conn, handler,
			relay.WithID(id),
			relay.WithDuplicatePolicy(cfg.DuplicatePolicy),
		)
		if adm != nil {
			adm.Attach(r)
		}
		return r.Run(gctx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Str("relay", id).Err(err).Msg("relayd stopped")
		return err
	}
	log.Info().Str("relay", id).Msg("relayd stopped")
	return nil
}
