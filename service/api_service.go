package service

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vocdoni/zk-escrow/api"
	"github.com/vocdoni/zk-escrow/log"
)

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	conf *api.APIConfig
	api  *api.API
	mu   sync.Mutex
}

// NewAPI creates a new APIService instance.
func NewAPI(conf *api.APIConfig) *APIService {
	return &APIService{conf: conf}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(_ context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api != nil {
		return fmt.Errorf("service already running")
	}
	a, err := api.New(as.conf)
	if err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	as.api = a
	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := as.api.Close(ctx); err != nil {
		log.Warnw("failed to stop API server", "error", err.Error())
	}
	as.api = nil
}

// HostPort returns the host and port of the API server. While running it
// reports the bound port, so port 0 resolves to the one chosen by the OS.
func (as *APIService) HostPort() (string, int) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.api != nil {
		if tcp, ok := as.api.Addr().(*net.TCPAddr); ok {
			return as.conf.Host, tcp.Port
		}
	}
	return as.conf.Host, as.conf.Port
}
