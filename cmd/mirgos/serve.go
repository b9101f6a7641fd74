package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/mahammadbbyv/mirgos/svc/coordinator/config"
	"github.com/mahammadbbyv/mirgos/svc/coordinator/ingress"
	"github.com/mahammadbbyv/mirgos/svc/coordinator/service"

	"github.com/rs/zerolog/log"
)

func serve(configs []string) error {
	settings, err := config.Process(configs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load mirgos configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordinator := service.NewCoordinator(ctx, *settings)
	wsIngress := ingress.NewWSIngress(coordinator.Clients)

	go coordinator.PollClients(ctx)

	errc := make(chan error, 1)
	go func() {
		errc <- wsIngress.Serve(ctx, settings.Ingress.Web.Port)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	select {
	case err := <-errc:
		log.Error().Err(err).Msg("failed to serve")
	case sig := <-sigs:
		log.Info().Msgf("terminating: %v", sig)
	}

	wsIngress.Shutdown(ctx)
	return nil
}
