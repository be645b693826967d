package main

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"parley/backend/internal/config"
	"parley/backend/internal/notify"
	"parley/backend/internal/service/appointments"
	"parley/backend/internal/service/negotiation"
	"parley/backend/internal/service/slots"
	"parley/backend/internal/store/postgres"
	"parley/backend/internal/telemetry"
	grpcTransport "parley/backend/internal/transport/grpc"
)

const serviceName = "parley-server"

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	log.Info("starting", slog.String("grpc_addr", cfg.GRPCAddr), slog.String("log_level", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTelEndpoint,
		SampleRatio:  cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Error("tracing setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", slog.Any("err", err))
		}
	}()

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	err = postgres.ReadyCheck(db)(pingCtx)
	cancelPing()
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database not reachable", args...)
		os.Exit(1)
	}

	dispatcher, closeDispatcher := newDispatcher(cfg, log)
	notifier := notify.NewNotifier(dispatcher, log,
		notify.WithTimeout(cfg.NotifyTimeout),
		notify.WithDirectory(postgres.NewDirectory(db)),
	)
	defer func() {
		notifier.Close()
		if err := closeDispatcher(); err != nil {
			log.Warn("notification dispatcher close failed", slog.Any("err", err))
		}
	}()

	limiter, closeLimiter, err := newLimiter(ctx, cfg, log)
	if err != nil {
		log.Error("rate limiter setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer closeLimiter()

	repo := postgres.NewRepo(db)
	apptSvc := appointments.NewService(repo,
		appointments.WithNotifier(notifier),
		appointments.WithLocation(cfg.Location),
		appointments.WithLogger(log),
	)
	slotSvc := slots.NewService(repo, slots.Config{
		WorkStart: cfg.WorkStart,
		WorkEnd:   cfg.WorkEnd,
		Step:      cfg.SlotStep,
		Location:  cfg.Location,
	})
	negotiationSvc := negotiation.NewService(repo,
		negotiation.WithNotifier(notifier),
		negotiation.WithLocation(cfg.Location),
		negotiation.WithLogger(log),
	)

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			grpcTransport.UnaryServerRequestIDInterceptor(),
			grpcTransport.UnaryServerTimeoutInterceptor(cfg.GRPCRequestTimeout),
			grpcTransport.UnaryServerIdentityInterceptor(cfg.JWTSecret, log),
			grpcTransport.UnaryServerRateLimitInterceptor(limiter, log),
		),
	)
	grpcTransport.RegisterAppointmentsServiceServer(grpcServer, grpcTransport.NewAppointmentsServer(apptSvc, slotSvc, log))
	grpcTransport.RegisterNegotiationServiceServer(grpcServer, grpcTransport.NewNegotiationServer(negotiationSvc, log))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(grpcTransport.AppointmentsServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcTransport.NegotiationServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr))
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()

	log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		healthServer.Shutdown()
		shutdown(log, grpcServer, cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("grpc server stopped with error", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

// newDispatcher publishes notifications to Kafka when brokers are configured
// and logs them otherwise.
func newDispatcher(cfg config.Config, log *slog.Logger) (notify.Dispatcher, func() error) {
	brokers := notify.SplitBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		log.Info("no kafka brokers configured; notifications are logged only")
		return notify.NewLogDispatcher(log), func() error { return nil }
	}
	log.Info("publishing notifications to kafka", slog.Any("brokers", brokers), slog.String("topic", cfg.KafkaTopic))
	d := notify.NewKafkaDispatcher(brokers, cfg.KafkaTopic)
	return d, d.Close
}

// newLimiter shares the limit across instances through Redis when a URL is
// configured, and keeps it per process otherwise.
func newLimiter(ctx context.Context, cfg config.Config, log *slog.Logger) (grpcTransport.Limiter, func(), error) {
	if cfg.RateLimitRPS <= 0 {
		log.Info("rate limiting disabled")
		return nil, func() {}, nil
	}
	if cfg.RedisURL == "" {
		return grpcTransport.NewPeerLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// Limiter errors fail open in the interceptor.
		log.Warn("redis ping failed", slog.Any("err", err))
	}
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			log.Warn("redis close failed", slog.Any("err", err))
		}
	}
	perMinute := int(math.Ceil(cfg.RateLimitRPS * 60))
	return grpcTransport.NewRedisLimiter(rdb, perMinute, time.Minute, "parley:rl"), closeFn, nil
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
