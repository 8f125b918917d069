// Package graceful coordinates orderly shutdown of the HTTP server, the
// background workers and the database connection.
package graceful

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/viewplay/vpc-sale-service/pkg/logger"
)

// Stopper is implemented by the background workers
type Stopper interface {
	Stop()
}

type ShutdownManager struct {
	server   *http.Server
	db       *sqlx.DB
	stoppers []Stopper
	logger   *logger.Logger
}

func NewShutdownManager(server *http.Server, db *sqlx.DB, logger *logger.Logger) *ShutdownManager {
	return &ShutdownManager{
		server: server,
		db:     db,
		logger: logger,
	}
}

// Register adds a worker to stop before the server drains
func (sm *ShutdownManager) Register(s Stopper) {
	sm.stoppers = append(sm.stoppers, s)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then stops workers first
// so no settlement starts mid-drain, drains the HTTP server and closes the
// database last.
func (sm *ShutdownManager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sm.logger.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, s := range sm.stoppers {
		s.Stop()
	}

	if err := sm.server.Shutdown(ctx); err != nil {
		sm.logger.Error("Server forced shutdown", "error", err)
	}

	if err := sm.db.Close(); err != nil {
		sm.logger.Warn("Database close error", "error", err)
	}

	sm.logger.Info("Shutdown complete")
}
