package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthcheck "github.com/vladislavdragonenkov/vegshop/internal/health"
	grpcsvc "github.com/vladislavdragonenkov/vegshop/internal/service/grpc"
	"github.com/vladislavdragonenkov/vegshop/internal/version"
)

const httpShutdownTimeout = 5 * time.Second

// opsMux — служебные маршруты: метрики, пробы и версия сборки.
func opsMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /healthz", healthHandler)
	mux.HandleFunc("GET /livez", healthcheck.LivenessHandler)
	mux.HandleFunc("GET /readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(version.Fields())
	})
	return mux
}

// startMetricsServer поднимает opsMux на addr и гасит его вместе с ctx.
// Ошибка прослушивания не роняет сервис: без метрик заказы принимаются.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: opsMux(healthHandler), ReadHeaderTimeout: 5 * time.Second}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.WithError(err).Warnf("metrics listener %s not opened", addr)
		return nil
	}

	errCh := make(chan error, 1)
	serveOn(srv, lis, logger.WithField("server", "ops"), errCh)
	go func() {
		select {
		case <-ctx.Done():
		case err := <-errCh:
			logger.WithError(err).Warn("metrics server failed")
		}
		shutdownHTTP(srv, logger)
	}()
	return srv
}

// serveHTTP запускает API магазина на уже открытом listener.
func serveHTTP(lis net.Listener, handler http.Handler, logger *log.Entry, errCh chan<- error) *http.Server {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	serveOn(srv, lis, logger.WithField("server", "api"), errCh)
	return srv
}

func serveOn(srv *http.Server, lis net.Listener, logger *log.Entry, errCh chan<- error) {
	go func() {
		logger.Infof("HTTP слушает %s", lis.Addr())
		err := srv.Serve(lis)
		if errors.Is(err, http.ErrServerClosed) {
			return
		}
		select {
		case errCh <- err:
		default:
			logger.WithError(err).Error("http server stopped")
		}
	}()
}

// shutdownHTTP даёт запросам в полёте httpShutdownTimeout на завершение.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// newGRPCServer регистрирует административный сервис, health и метрики.
func newGRPCServer(admin grpcsvc.OrderAdminServer, verifier grpcsvc.TokenVerifier, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcMetrics.UnaryServerInterceptor(),
		grpcsvc.AdminAuthInterceptor(verifier),
	))
	grpcsvc.Register(server, admin)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)

	grpcMetrics.InitializeMetrics(server)
	return server, healthServer
}

// stopGRPC останавливает сервер, не дожидаясь зависших вызовов дольше timeout.
func stopGRPC(server *grpc.Server, healthServer *health.Server, timeout time.Duration, logger *log.Entry) {
	if server == nil {
		return
	}
	if healthServer != nil {
		healthServer.Shutdown()
	}
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}
