package service

import (
	"context"
	"time"

	"github.com/vocdoni/zk-escrow/prover"
	"golang.org/x/sync/errgroup"
)

// DownloadArtifacts downloads all the circuit artifacts concurrently.
func DownloadArtifacts(timeout time.Duration, artifacts map[prover.Circuit]*prover.CircuitArtifacts) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, ca := range artifacts {
		g.Go(func() error {
			return ca.LoadAll(ctx)
		})
	}
	return g.Wait()
}
