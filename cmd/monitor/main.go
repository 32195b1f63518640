package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/absmach/hivemon/monitor"
	"github.com/absmach/hivemon/monitor/api"
	"github.com/absmach/hivemon/monitor/middleware"
	"github.com/absmach/hivemon/pkg/averager"
	"github.com/absmach/hivemon/pkg/checkpoint"
	"github.com/absmach/hivemon/pkg/model"
	"github.com/absmach/hivemon/pkg/mqtt"
	"github.com/absmach/hivemon/pkg/registry"
	"github.com/absmach/hivemon/pkg/store"
	"github.com/absmach/hivemon/pkg/telemetry"
)

const (
	svcName          = "monitor"
	pathEnv          = ".env"
	publicIPResolver = "https://api.ipify.org"
	shutdownTimeout  = 5 * time.Second
)

type envConfig struct {
	LogLevel           string        `env:"MONITOR_LOG_LEVEL"           envDefault:"info"`
	InstanceID         string        `env:"MONITOR_INSTANCE_ID"`
	Experiment         string        `env:"MONITOR_EXPERIMENT_PREFIX"   envDefault:"albert"`
	RefreshPeriod      time.Duration `env:"MONITOR_REFRESH_PERIOD"      envDefault:"30s"`
	MetadataExpiration time.Duration `env:"MONITOR_METADATA_EXPIRATION" envDefault:"2m"`
	StoreCheckpoints   bool          `env:"MONITOR_STORE_CHECKPOINTS"   envDefault:"false"`
	DataDir            string        `env:"MONITOR_DATA_DIR"            envDefault:"./data"`
	GatewayURL         string        `env:"MONITOR_GATEWAY_URL"`
	GatewayTimeout     time.Duration `env:"MONITOR_GATEWAY_TIMEOUT"     envDefault:"10s"`
	AveragerURL        string        `env:"MONITOR_AVERAGER_URL"        envDefault:"http://localhost:8090"`
	AnnounceAddrs      []string      `env:"MONITOR_ANNOUNCE_ADDRS"      envSeparator:","`
	UsePublicIP        bool          `env:"MONITOR_USE_PUBLIC_IP"       envDefault:"false"`
	HTTPPort           string        `env:"MONITOR_HTTP_PORT"           envDefault:"7171"`
}

type mqttConfig struct {
	Address  string        `env:"ADDRESS"  envDefault:"tcp://localhost:1883"`
	QoS      uint8         `env:"QOS"      envDefault:"2"`
	Timeout  time.Duration `env:"TIMEOUT"  envDefault:"30s"`
	Username string        `env:"USERNAME"`
	Password string        `env:"PASSWORD"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	mqttCfg := mqttConfig{}
	if err := env.ParseWithOptions(&mqttCfg, env.Options{Prefix: "MONITOR_MQTT_"}); err != nil {
		logger.Error("failed to load MQTT configuration", slog.String("error", err.Error()))

		return
	}

	if cfg.UsePublicIP {
		addr, err := resolvePublicIP(ctx)
		if err != nil {
			logger.Error("failed to resolve public IP address", slog.String("error", err.Error()))

			return
		}
		logger.Info("Received public IP address of this machine", slog.String("address", addr))
		cfg.AnnounceAddrs = append(cfg.AnnounceAddrs, addr)
	}

	mqttPubSub, err := mqtt.NewPubSub(mqttCfg.Address, mqttCfg.QoS, cfg.InstanceID, mqttCfg.Username, mqttCfg.Password, cfg.Experiment, mqttCfg.Timeout, logger)
	if err != nil {
		logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

		return
	}
	defer func() {
		if err := mqttPubSub.Disconnect(context.Background()); err != nil {
			logger.Warn("failed to disconnect mqtt pubsub", slog.Any("error", err))
		}
	}()

	var metricsStore store.Store
	switch {
	case cfg.GatewayURL != "":
		metricsStore = store.NewHTTPStore(cfg.GatewayURL, cfg.GatewayTimeout)
	default:
		metricsStore = store.NewMQTTStore(mqttPubSub, cfg.Experiment, cfg.Experiment+"_metrics", cfg.MetadataExpiration)
	}

	reg := prometheus.NewRegistry()

	var coordinator *checkpoint.Coordinator
	if cfg.StoreCheckpoints {
		ckptCfg := checkpoint.Config{}
		if err := env.ParseWithOptions(&ckptCfg, env.Options{Prefix: "MONITOR_"}); err != nil {
			logger.Error("failed to load checkpoint configuration", slog.String("error", err.Error()))

			return
		}
		regCfg := registry.Config{}
		if err := env.ParseWithOptions(&regCfg, env.Options{Prefix: "MONITOR_REGISTRY_"}); err != nil {
			logger.Error("failed to load registry configuration", slog.String("error", err.Error()))

			return
		}
		modelCfg := model.Config{}
		if err := env.ParseWithOptions(&modelCfg, env.Options{Prefix: "MONITOR_MODEL_"}); err != nil {
			logger.Error("failed to load model configuration", slog.String("error", err.Error()))

			return
		}

		skeleton, err := model.New(modelCfg)
		if err != nil {
			logger.Error("failed to build model skeleton", slog.String("error", err.Error()))

			return
		}

		local, err := checkpoint.NewLocalStore(cfg.DataDir)
		if err != nil {
			logger.Error("failed to open local checkpoint store", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := local.Close(); err != nil {
				logger.Warn("failed to close local checkpoint store", slog.Any("error", err))
			}
		}()

		avg := averager.NewHTTPAverager(cfg.AveragerURL, ckptCfg.PullTimeout)
		exporter := registry.NewExporter(regCfg)

		coordinator, err = checkpoint.NewCoordinator(ckptCfg, avg, exporter, local, skeleton, logger)
		if err != nil {
			logger.Error("failed to initialize checkpoint coordinator", slog.String("error", err.Error()))

			return
		}
	}

	sink := telemetry.NewMultiSink(
		telemetry.NewMQTTSink(mqttPubSub, cfg.Experiment),
		telemetry.NewPrometheusSink(reg, cfg.Experiment),
	)

	svc := monitor.NewService(cfg.InstanceID, cfg.Experiment, cfg.AnnounceAddrs, metricsStore, coordinator, sink, logger)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(noop.NewTracerProvider().Tracer(svcName), svc)
	counter, latency := makeMetrics(reg)
	svc = middleware.Metrics(counter, latency, svc)

	server := &http.Server{
		Addr:    net.JoinHostPort("", cfg.HTTPPort),
		Handler: api.MakeHandler(svc, reg, logger, svcName, cfg.InstanceID),
	}

	g.Go(func() error {
		logger.Info(svcName+" HTTP server listening", slog.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return monitor.Run(ctx, svc, cfg.RefreshPeriod, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}

func makeMetrics(reg prometheus.Registerer) (*kitprometheus.Counter, *kitprometheus.Summary) {
	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hivemon",
		Subsystem: svcName,
		Name:      "request_count",
		Help:      "Number of service operations.",
	}, []string{"method"})
	latencyVec := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "hivemon",
		Subsystem: svcName,
		Name:      "request_latency_microseconds",
		Help:      "Total duration of service operations in microseconds.",
	}, []string{"method"})
	reg.MustRegister(counterVec, latencyVec)

	return kitprometheus.NewCounter(counterVec), kitprometheus.NewSummary(latencyVec)
}

func resolvePublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, publicIPResolver, http.NoBody)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("public IP resolver returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	ip := net.ParseIP(string(body))
	if ip == nil {
		return "", fmt.Errorf("public IP resolver returned invalid address %q", body)
	}
	if ip.To4() != nil {
		return fmt.Sprintf("/ip4/%s/tcp/0", ip), nil
	}

	return fmt.Sprintf("/ip6/%s/tcp/0", ip), nil
}
