// Package server exposes the organize pipeline over HTTP: a
// synchronous /organize endpoint, the async /process and /status pair,
// and a liveness probe.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pinaxlabs/organizer/types"
)

// OrganizeService is the synchronous pipeline behind POST /organize.
type OrganizeService interface {
	Organize(ctx context.Context, req *types.OrganizeRequest) (*types.OrganizePlan, error)
}

// BatchManager is the async pipeline behind /process and /status.
type BatchManager interface {
	Submit(ctx context.Context, req *types.ProcessRequest) (*types.ProcessResponse, error)
	Status(batchID, chunkID string) (*types.StatusResponse, error)
}

type Server struct {
	organizer OrganizeService
	batches   BatchManager
	baseCtx   context.Context
	server    *http.Server
}

// New builds the HTTP server on the given port. baseCtx bounds the
// lifetime of batches submitted through this server; batches must not
// die with the request that submitted them.
func New(baseCtx context.Context, port int, organizer OrganizeService, batches BatchManager) *Server {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	s := &Server{
		organizer: organizer,
		batches:   batches,
		baseCtx:   baseCtx,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /organize", s.handleOrganize)
	mux.HandleFunc("POST /process", s.handleProcess)
	mux.HandleFunc("GET /status/{batch_id}/{chunk_id}", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           corsMiddleware(requestLogMiddleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs ListenAndServe on its own goroutine, reporting fatal
// errors on errChan.
func (s *Server) Start(wg *sync.WaitGroup, errChan chan<- error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
