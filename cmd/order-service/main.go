package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lymian/kirbook-pedido-rest/internal/order/adapters/identity"
	"github.com/lymian/kirbook-pedido-rest/internal/order/adapters/inventory"
	orderstore "github.com/lymian/kirbook-pedido-rest/internal/order/adapters/sqlite"
	"github.com/lymian/kirbook-pedido-rest/internal/order/app"
	"github.com/lymian/kirbook-pedido-rest/internal/order/infra/httpx"
	journalstore "github.com/lymian/kirbook-pedido-rest/internal/order/stockjournal/sqlite"
	"github.com/lymian/kirbook-pedido-rest/internal/pkg/cache"
	"github.com/lymian/kirbook-pedido-rest/internal/pkg/telemetry"
)

const serviceName = "order-service"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := telemetry.NewLogger()

	shutdownTracer, err := telemetry.SetupTracer(ctx, serviceName)
	if err != nil {
		log.Error("tracer setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("tracer shutdown failed", "error", err)
		}
	}()

	store, err := orderstore.Open(getEnv("ORDER_DB_PATH", "./data/orders.db"))
	if err != nil {
		log.Error("order store open failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	journal, err := journalstore.Open(getEnv("JOURNAL_DB_PATH", "./data/stock-journal.db"))
	if err != nil {
		log.Error("stock journal open failed", "error", err)
		os.Exit(1)
	}
	defer journal.Close()

	identityClient := identity.NewClient(getEnv("AUTH_SERVICE_URL", "http://localhost:8081/ws/auth"))

	var inventoryGW app.InventoryGateway = inventory.NewClient(getEnv("INVENTORY_SERVICE_URL", "http://localhost:8082"))
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		c := cache.NewRedisCache(redisAddr, serviceName)
		inventoryGW = inventory.NewCachedClient(inventoryGW, c, 30*time.Second, log)
	}

	service := app.NewService(store, identityClient, inventoryGW, journal, log)
	handler := httpx.NewHandler(service, log)
	router := otelhttp.NewHandler(httpx.NewRouter(handler), serviceName)

	srv := &http.Server{
		Addr:    getEnv("HTTP_ADDR", ":8080"),
		Handler: router,
	}

	go func() {
		log.Info("order service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	log.Info("order service stopped")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
