package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/smhi-opendata/internal/api/http"
	"github.com/i474232898/smhi-opendata/internal/config"
	"github.com/i474232898/smhi-opendata/internal/fetch"
	"github.com/i474232898/smhi-opendata/internal/geo"
	"github.com/i474232898/smhi-opendata/internal/grid"
	"github.com/i474232898/smhi-opendata/internal/metobs"
	"github.com/i474232898/smhi-opendata/internal/scheduler"
	"github.com/i474232898/smhi-opendata/internal/smhi"
	"github.com/i474232898/smhi-opendata/internal/strang"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared fetcher for every SMHI service (circuit breaker per host).
	fetcher, err := fetch.New(cfg.FetchConfig())
	if err != nil {
		log.Fatalf("failed to build fetcher: %v", err)
	}

	catalog := metobs.NewCatalog(fetcher, cfg.MetObsURL)

	var opts []smhi.Option
	if cfg.GeocoderAPIKey != "" {
		opts = append(opts, smhi.WithLocator(geo.NewGoogleLocator(cfg.GeocoderAPIKey)))
	} else {
		log.Printf("INFO: GOOGLE_GEOCODER_API_KEY not set; city lookup disabled")
	}
	service := smhi.NewService(catalog, opts...)

	// Catalog liveness probe.
	probe := scheduler.New(catalog, cfg.ProbeInterval)
	if err := probe.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer probe.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "smhi-opendata",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.HTTPTimeout + 10*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(httpapi.RequestID())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} - ${latency} ${method} ${path} ${respHeader:X-Request-ID}\n",
	}))
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Service: service,
		Strang:  strang.NewClient(fetcher, cfg.MetanalysURL),
		Mesan:   grid.NewMesan(fetcher, cfg.MesanURL()),
		Metfcst: grid.NewMetfcst(fetcher, cfg.MetfcstProductURL()),
		Probe:   probe,
	})

	go func() {
		log.Printf("INFO: listening on :%s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
