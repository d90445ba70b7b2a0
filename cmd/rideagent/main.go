package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/ridelink/internal/ride/agent"
	"github.com/example/ridelink/internal/ride/api"
	"github.com/example/ridelink/internal/ride/chat"
	"github.com/example/ridelink/internal/ride/domain"
	"github.com/example/ridelink/internal/ride/lifecycle"
	"github.com/example/ridelink/internal/ride/location"
	"github.com/example/ridelink/internal/ride/notify"
	"github.com/example/ridelink/internal/ride/push"
	"github.com/example/ridelink/internal/ride/statestore"
	ridesync "github.com/example/ridelink/internal/ride/sync"
	"github.com/example/ridelink/internal/ride/view"
	"github.com/example/ridelink/internal/session"
	"github.com/example/ridelink/pkg/observability"
)

type appConfig struct {
	APIBaseURL       string
	PushBaseURL      string
	Token            string
	NATSURL          string
	RedisAddr        string
	StatePath        string
	MetricsAddr      string
	PollInterval     time.Duration
	LocationInterval time.Duration
	ChatInterval     time.Duration
	ReconnectDelay   time.Duration
	ResetGrace       time.Duration
	AgentLat         float64
	AgentLng         float64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("ride-agent")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "ride-agent")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()
	if cfg.Token == "" {
		logger.Fatal("RIDE_TOKEN is required")
	}

	sess, err := session.New(cfg.Token)
	if err != nil {
		logger.Fatal("session setup", zap.Error(err))
	}
	logger.Info("session ready",
		zap.String("user_id", sess.UserID.String()),
		zap.String("role", string(sess.Role)))

	var store domain.StateStore
	var checks []observability.HealthCheck
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
		store = statestore.NewRedisStore(redisClient, "", logger.Named("statestore"))
		checks = append(checks, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	} else {
		store = statestore.NewFileStore(cfg.StatePath, logger.Named("statestore"))
	}

	presenter := view.NewLogView(logger)

	sampler := staticSampler{point: domain.GeoPoint{Lat: cfg.AgentLat, Lng: cfg.AgentLng}}
	broadcaster := location.New(sampler, presenter, logger.Named("location"), location.Config{
		Interval: cfg.LocationInterval,
	})

	ctrl := lifecycle.New(sess, store, presenter, broadcaster, logger.Named("lifecycle"), lifecycle.Config{
		ResetGrace: cfg.ResetGrace,
	})
	go ctrl.Run(ctx)

	backend := api.New(api.Config{BaseURL: cfg.APIBaseURL, Token: cfg.Token}, logger.Named("api"))

	var transport push.Transport
	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL, nats.Name("rideagent"))
		if err != nil {
			logger.Fatal("nats connect", zap.Error(err))
		}
		defer conn.Drain() //nolint:errcheck
		transport = push.NewNATSTransport(conn, sess.UserID)
		checks = append(checks, func(context.Context) error {
			if !conn.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		})
	} else {
		transport = push.NewWebsocketTransport(cfg.PushBaseURL, cfg.Token)
	}

	syncCfg := ridesync.Config{PollInterval: cfg.PollInterval, ReconnectDelay: cfg.ReconnectDelay}
	manager := ridesync.NewManager(transport, backend, ctrl, broadcaster, logger.Named("sync"), syncCfg)

	runner := agent.New(sess, backend, store, ctrl, manager, logger.Named("agent"))
	runner.Recover(ctx)

	conversation := chat.New(backend, presenter, logger.Named("chat"), cfg.ChatInterval)
	if record, ok := ctrl.ActiveRide(); ok && !record.Status.Terminal() {
		if other := counterpartID(sess, record); other != uuid.Nil {
			conversation.Open(ctx, record.ID, other)
		}
	}

	if sess.Driver() {
		dispatcher := notify.NewDispatcher(presenter, backend, manager, logger.Named("notify"))
		go ridesync.NewNotifications(transport, dispatcher, logger.Named("notify"), syncCfg).Run(ctx)
		go notify.NewAvailability(backend, dispatcher, presenter, logger.Named("notify"), cfg.PollInterval).Run(ctx)
	}

	r := chi.NewRouter()
	r.Mount("/observability", observability.MetricsRouter(checks...))
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	conversation.Close()
	manager.Deactivate()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// staticSampler reports a fixed position for agents without positioning
// hardware. An unset position counts as capability unavailable.
type staticSampler struct {
	point domain.GeoPoint
}

func (s staticSampler) Sample(_ context.Context) (domain.GeoPoint, error) {
	if s.point.Zero() {
		return domain.GeoPoint{}, errNoPosition
	}
	return s.point, nil
}

var errNoPosition = errors.New("no agent position configured")

func counterpartID(sess *session.Context, record domain.RideRecord) uuid.UUID {
	if sess.Driver() {
		return record.RiderID
	}
	return record.DriverID
}

func loadConfig() appConfig {
	return appConfig{
		APIBaseURL:       getenv("RIDE_API_URL", "http://localhost:8000"),
		PushBaseURL:      getenv("RIDE_PUSH_URL", "ws://localhost:8000"),
		Token:            os.Getenv("RIDE_TOKEN"),
		NATSURL:          os.Getenv("NATS_URL"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		StatePath:        getenv("RIDE_STATE_PATH", "ridelink_state.json"),
		MetricsAddr:      getenv("METRICS_ADDR", ":9091"),
		PollInterval:     time.Duration(parseIntEnv("POLL_INTERVAL_SEC", 5)) * time.Second,
		LocationInterval: time.Duration(parseIntEnv("LOCATION_INTERVAL_SEC", 5)) * time.Second,
		ChatInterval:     time.Duration(parseIntEnv("CHAT_INTERVAL_SEC", 3)) * time.Second,
		ReconnectDelay:   time.Duration(parseIntEnv("NOTIFY_RECONNECT_SEC", 5)) * time.Second,
		ResetGrace:       time.Duration(parseIntEnv("RESET_GRACE_SEC", 3)) * time.Second,
		AgentLat:         parseFloatEnv("AGENT_LAT", 0),
		AgentLng:         parseFloatEnv("AGENT_LNG", 0),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
