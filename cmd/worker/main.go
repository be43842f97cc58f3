package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/streadway/amqp"

	"housing-scraper/app"
	"housing-scraper/config"
	"housing-scraper/notify"
	"housing-scraper/scraper"
	"housing-scraper/scraper/fetch"
	"housing-scraper/storage"
	"housing-scraper/utils"
)

// runRequest is the optional payload of a run requested event.
type runRequest struct {
	Cities []string `json:"cities"`
}

func main() {
	os.Exit(run())
}

func run() int {
	logger := utils.NewLogger()
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration: %v", err)
		return 1
	}
	logger.SetLevel(utils.ParseLevel(cfg.LogLevel))

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required in worker mode")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, app.StoreOptions(cfg), logger)
	if err != nil {
		logger.Error("Failed to connect to the %s store: %v", cfg.DBDriver, err)
		return 1
	}
	defer store.Close()

	source, err := scraper.NewSource(cfg.Source)
	if err != nil {
		logger.Error("%v", err)
		return 1
	}

	fetcher, err := fetch.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to create fetcher: %v", err)
		return 1
	}
	defer fetcher.Close()

	queue := &notify.Queue{ConnString: cfg.AMQPURL}
	defer queue.Close()

	deliveries, err := queue.Consume(cfg.AMQPRequestQueue)
	if err != nil {
		logger.Error("Failed to consume %s: %v", cfg.AMQPRequestQueue, err)
		return 1
	}

	runner := app.NewRunner(cfg, store, fetcher, source, queue, os.Stdout, logger)
	logger.Info("[worker] Waiting for %s on %s. To exit press CTRL+C", notify.EventRunRequested, cfg.AMQPRequestQueue)

	for {
		select {
		case <-ctx.Done():
			logger.Info("[worker] Shutting down")
			return 0
		case delivery, ok := <-deliveries:
			if !ok {
				logger.Error("[worker] Delivery channel closed")
				return 1
			}
			handleDelivery(ctx, cfg, runner, delivery, logger)
		}
	}
}

// handleDelivery runs one scrape per request. Runs never overlap because
// deliveries are handled on this goroutine only. Requested cities must be
// enabled in the configuration.
func handleDelivery(ctx context.Context, cfg *config.Config, runner *app.Runner, delivery amqp.Delivery, logger *utils.Logger) {
	msg, err := notify.DecodeMessage(delivery.Body)
	if err != nil {
		logger.Warn("[worker] Dropping message: %v", err)
		_ = delivery.Nack(false, false)
		return
	}
	if msg.Event != notify.EventRunRequested {
		logger.Warn("[worker] Dropping unknown event %q", msg.Event)
		_ = delivery.Nack(false, false)
		return
	}

	var req runRequest
	if len(msg.Data) > 0 && string(msg.Data) != "null" {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			logger.Warn("[worker] Dropping request with bad payload: %v", err)
			_ = delivery.Nack(false, false)
			return
		}
	}

	cities, err := cfg.ResolveCities(req.Cities)
	if err != nil {
		logger.Warn("[worker] Dropping request: %v", err)
		_ = delivery.Nack(false, false)
		return
	}
	if len(cities) == 0 {
		logger.Info("[worker] Run requested for the configured cities")
	} else {
		logger.Info("[worker] Run requested for %d cities", len(cities))
	}
	// A started run is finished even if shutdown is requested meanwhile.
	runner.Run(context.WithoutCancel(ctx), cities)

	_ = delivery.Ack(false)
}
