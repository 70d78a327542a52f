package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/QuantumAegis/internal/api"
	"github.com/jmerrifield20/QuantumAegis/internal/api/handler"
	"github.com/jmerrifield20/QuantumAegis/internal/health"
	"github.com/jmerrifield20/QuantumAegis/internal/intel"
	"github.com/jmerrifield20/QuantumAegis/internal/keyring"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// dashboardService is the gRPC health service name for the HTTP API.
const dashboardService = "aegis.Dashboard"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("aegis-server exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("aegis")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.grpc_port", 9090)
	viper.SetDefault("server.cors_origins", []string{"*"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("server.max_threats", 7)
	viper.SetDefault("server.debug", false)
	viper.SetDefault("virustotal.api_key", "")
	viper.SetDefault("virustotal.base_url", intel.DefaultVirusTotalURL)
	viper.SetDefault("virustotal.min_interval", intel.DefaultMinInterval)
	viper.SetDefault("virustotal.timeout", 15*time.Second)
	viper.SetDefault("virustotal.metrics_query", intel.DefaultMetricsQuery)
	viper.SetDefault("virustotal.threats_query", intel.DefaultThreatsQuery)
	viper.SetDefault("shodan.api_key", "")
	viper.SetDefault("shodan.base_url", intel.DefaultShodanURL)
	viper.SetDefault("abuseipdb.api_key", "")
	viper.SetDefault("abuseipdb.base_url", intel.DefaultAbuseIPDBURL)
	viper.SetDefault("intel.cache_ttl", 24*time.Hour)
	viper.SetDefault("keys.rotation_interval", keyring.DefaultInterval)
	viper.SetDefault("keys.retain", keyring.DefaultRetain)
	viper.SetDefault("health.check_interval", time.Minute)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	if viper.GetBool("server.debug") {
		if dev, err := zap.NewDevelopment(); err == nil {
			logger = dev
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Intelligence providers ────────────────────────────────────────────────
	vt := intel.NewVirusTotal(intel.VirusTotalConfig{
		APIKey:      viper.GetString("virustotal.api_key"),
		BaseURL:     viper.GetString("virustotal.base_url"),
		MinInterval: viper.GetDuration("virustotal.min_interval"),
		Timeout:     viper.GetDuration("virustotal.timeout"),
	})
	shodan := intel.NewShodan(viper.GetString("shodan.api_key"), viper.GetString("shodan.base_url"), 0)
	abuse := intel.NewAbuseIPDB(viper.GetString("abuseipdb.api_key"), viper.GetString("abuseipdb.base_url"), 0)

	if !vt.Enabled() {
		logger.Info("virustotal: no API key, serving simulated data (set VIRUSTOTAL_API_KEY to enable)")
	}

	feed := intel.NewFeed(vt, viper.GetDuration("virustotal.min_interval"), logger)
	feed.SetFetchRecord(handler.RecordFetch)

	checker := intel.NewIPChecker(vt, shodan, abuse, viper.GetDuration("intel.cache_ttl"), logger)
	checker.SetDecisionRecord(handler.RecordDecision)
	checker.StartCacheEviction(ctx, time.Hour)

	// ── Key ring ──────────────────────────────────────────────────────────────
	ring, err := keyring.New(viper.GetInt("keys.retain"), logger)
	if err != nil {
		return fmt.Errorf("key ring: %w", err)
	}
	ring.SetRotateRecord(handler.RecordKeyRotation)
	ring.Start(ctx, viper.GetDuration("keys.rotation_interval"))

	// ── Health ────────────────────────────────────────────────────────────────
	healthSvc := grpchealth.NewServer()
	healthSvc.SetServingStatus(dashboardService, grpc_health_v1.HealthCheckResponse_SERVING)

	var upstreams []health.Upstream
	if vt.Enabled() {
		upstreams = append(upstreams, health.Upstream{Name: "virustotal", URL: vt.BaseURL()})
	}
	if shodan.Enabled() {
		upstreams = append(upstreams, health.Upstream{Name: "shodan", URL: shodan.BaseURL()})
	}
	if abuse.Enabled() {
		upstreams = append(upstreams, health.Upstream{Name: "abuseipdb", URL: abuse.BaseURL()})
	}
	hc := health.New(upstreams, healthSvc, health.Config{
		CheckInterval: viper.GetDuration("health.check_interval"),
	}, logger)
	hc.SetMetricsRecord(handler.RecordHealthCheck)
	if len(upstreams) > 0 {
		go hc.Start(ctx)
	}

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" && !viper.GetBool("server.debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	dashboard := handler.NewDashboardHandler(feed, handler.DashboardConfig{
		MetricsQuery: viper.GetString("virustotal.metrics_query"),
		ThreatsQuery: viper.GetString("virustotal.threats_query"),
		MaxThreats:   viper.GetInt("server.max_threats"),
	}, logger)

	router := api.NewRouter(ctx, api.Config{
		CORSOrigins:  viper.GetStringSlice("server.cors_origins"),
		RateLimitRPS: viper.GetInt("server.rate_limit_rps"),
	}, api.Handlers{
		Dashboard: dashboard,
		Intel:     handler.NewIntelHandler(checker, ring, logger),
		Health:    hc,
	}, logger)

	httpPort := viper.GetInt("server.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("aegis HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── gRPC health server ────────────────────────────────────────────────────
	var grpcServer *grpc.Server
	if grpcPort := viper.GetInt("server.grpc_port"); grpcPort > 0 {
		grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
		if err != nil {
			return fmt.Errorf("gRPC listen on :%d: %w", grpcPort, err)
		}
		grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))
		grpc_health_v1.RegisterHealthServer(grpcServer, healthSvc)
		reflection.Register(grpcServer)

		go func() {
			logger.Info("aegis gRPC health listening", zap.Int("port", grpcPort))
			if err := grpcServer.Serve(grpcLis); err != nil {
				logger.Fatal("gRPC serve error", zap.Error(err))
			}
		}()
	}

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down aegis-server...")
	healthSvc.Shutdown()
	cancel()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("aegis-server stopped")
	return nil
}

// loggingInterceptor returns a gRPC unary server interceptor that logs each call.
func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		logger.Debug("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
