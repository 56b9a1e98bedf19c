// Package main provides the alert gateway service entry point. It consumes
// high-risk safety alerts from the broker, fans them out to subscriber rooms,
// and hosts the websocket endpoint clinicians connect to.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vitalcare/go-medsafe/internal/alert"
	"github.com/vitalcare/go-medsafe/internal/api/middleware"
	"github.com/vitalcare/go-medsafe/internal/domain/safety"
	"github.com/vitalcare/go-medsafe/internal/observability/metrics"
	"github.com/vitalcare/go-medsafe/internal/observability/tracing"
	"github.com/vitalcare/go-medsafe/internal/realtime"
	"github.com/vitalcare/go-medsafe/internal/stream"
)

// Config holds application configuration
type Config struct {
	Port         string
	KafkaBrokers []string
	RealtimeURL  string
	APIKeys      map[string]string
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := loadConfig()

	tp, err := tracing.Init(context.Background(), tracing.ConfigFromEnv("alert-gateway"))
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	m := metrics.New()

	// Realtime hub and websocket endpoint.
	hub := realtime.NewHub(logger)
	wsHandler := realtime.NewHandler(hub, logger)

	// Upstream connection for the distributor. The gateway dials the hub
	// endpoint it is configured with; by default that is its own /ws, which
	// keeps single-node deployments self-contained.
	transport := alert.NewWSTransport(alert.WSTransportConfig{
		URL:    cfg.RealtimeURL,
		APIKey: firstKey(cfg.APIKeys),
	}, logger)
	conn := alert.NewConnManager(transport, []string{alert.ClinicalTeamRoom}, alert.DefaultConnConfig(), logger)

	dedup := alert.NewDedupCache(alert.DefaultDedupConfig(), logger)
	defer dedup.Close()

	distributor := alert.NewDistributor(conn, dedup, logger)

	// Dead-letter producer for undecodable alerts.
	producerCfg := stream.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers
	dlqProducer, err := stream.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("failed to create DLQ producer", zap.Error(err))
	}
	defer dlqProducer.Close()

	handler := func(ctx context.Context, msg *stream.ConsumedMessage) error {
		m.KafkaMessagesConsumed.Inc()

		var a safety.Alert
		if err := json.Unmarshal(msg.Value, &a); err != nil {
			logger.Error("undecodable alert, routing to DLQ",
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return dlqProducer.ProduceMessage(ctx, stream.TopicAlertsDLQ, string(msg.Key), msg.Value)
		}

		before := distributor.Stats()
		if err := distributor.Distribute(ctx, &a); err != nil {
			return err
		}
		after := distributor.Stats()
		m.AlertsDelivered.Add(float64(after.Delivered - before.Delivered))
		m.AlertsDuplicate.Add(float64(after.Duplicates - before.Duplicates))
		m.AlertDeliveryFailed.Add(float64(after.Failures - before.Failures))
		return nil
	}

	consumerCfg := stream.DefaultConsumerConfig()
	consumerCfg.Brokers = cfg.KafkaBrokers
	consumer, err := stream.NewConsumer(consumerCfg, handler, logger)
	if err != nil {
		logger.Fatal("failed to create consumer", zap.Error(err))
	}

	// Router
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("alert-gateway"))

	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := stream.HealthCheck(r.Context(), cfg.KafkaBrokers); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"upstream":    conn.State(),
			"rooms":       conn.Rooms(),
			"clients":     hub.ClientCount(),
			"distributor": distributor.Stats(),
			"dedup":       dedup.Stats(),
			"consumer":    consumer.Stats(),
		})
	})
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws", wsHandler.ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKeys))
		// Manual escape hatch once the reconnect budget is exhausted.
		r.Post("/reconnect", func(w http.ResponseWriter, r *http.Request) {
			if err := conn.Reconnect(); err != nil {
				http.Error(w, `{"success":false,"error":"reconnect failed"}`, http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"success":true}`))
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// The hub endpoint must be listening before the distributor dials it.
	go func() {
		logger.Info("starting alert gateway", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	time.Sleep(100 * time.Millisecond)
	conn.Start()
	consumer.Start()

	// Gauge refresh
	gaugeDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.ConnectedClients.Set(float64(hub.ClientCount()))
				m.SetUpstreamState(string(conn.State()))
			case <-gaugeDone:
				return
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gateway")
	close(gaugeDone)

	if err := consumer.Stop(); err != nil {
		logger.Error("consumer stop error", zap.Error(err))
	}
	conn.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	logger.Info("gateway stopped")
}

func loadConfig() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	brokers := []string{"localhost:9092"}
	if env := os.Getenv("KAFKA_BROKERS"); env != "" {
		brokers = strings.Split(env, ",")
	}

	realtimeURL := os.Getenv("REALTIME_URL")
	if realtimeURL == "" {
		realtimeURL = "ws://localhost:" + port + "/ws"
	}

	apiKeys := map[string]string{
		"demo-api-key-12345": "demo-client",
	}
	if key := os.Getenv("API_KEY"); key != "" {
		apiKeys[key] = "env-client"
	}

	return Config{
		Port:         port,
		KafkaBrokers: brokers,
		RealtimeURL:  realtimeURL,
		APIKeys:      apiKeys,
	}
}

func firstKey(keys map[string]string) string {
	for k := range keys {
		return k
	}
	return ""
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"alert-gateway","version":"1.0.0"}`)
}
