package rpc

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/6529-Collections/netflow/internal/ledger"
	"github.com/6529-Collections/netflow/internal/rpc/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Dependencies are the read-side handles the API serves from. Progress may be
// nil when the indexer is not running in this process.
type Dependencies struct {
	DB        *sql.DB
	Snapshots ledger.SnapshotReader
	Progress  handlers.ChainProgress
	Token     handlers.TokenInfo
}

func StartRPCServer(port int, deps Dependencies, ctx context.Context) func() {
	zap.L().Info("Starting RPC server on port", zap.Int("port", port))
	mux := http.NewServeMux()

	snapshots := deps.Snapshots
	if snapshots == nil {
		snapshots = ledger.NewLedger(deps.DB)
	}

	transfersHandler := map[handlers.Method]handlers.HandlerFunc{
		handlers.HTTP_GET: func(r *http.Request) (any, error) {
			return handlers.TransfersGetHandler(r, deps.DB)
		},
	}

	handlers.SetupHandlers(mux, handlers.MethodHandlers{
		handlers.CreateApiPath(handlers.ApiV1, "status"): {
			handlers.HTTP_GET: func(r *http.Request) (any, error) {
				return handlers.StatusGetHandler(r, deps.Progress)
			},
		},
		handlers.CreateApiPath(handlers.ApiV1, "netflow"): {
			handlers.HTTP_GET: func(r *http.Request) (any, error) {
				return handlers.NetflowGetHandler(r, snapshots, deps.Token)
			},
		},
		handlers.CreateApiPath(handlers.ApiV1, "labeled_addresses"): {
			handlers.HTTP_GET: func(r *http.Request) (any, error) {
				return handlers.LabeledAddressesGetHandler(r, deps.DB)
			},
		},
		handlers.CreateApiPath(handlers.ApiV1, "transfers"):  transfersHandler,
		handlers.CreateApiPath(handlers.ApiV1, "transfers/"): transfersHandler,
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:    addr,
		Handler: loggingMiddleware(mux),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				zap.L().Info("RPC server closed")
			} else {
				zap.L().Fatal("starting RPC server failed", zap.Error(err))
			}
		}
	}()
	closeFunc := func() {
		zap.L().Info("Closing RPC server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("server shutdown failed", zap.Error(err))
		}
	}
	return closeFunc
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{w, http.StatusOK}
		next.ServeHTTP(rw, r)

		zap.L().Info("Request",
			zap.String("ip", r.RemoteAddr),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.statusCode),
		)
	})
}
