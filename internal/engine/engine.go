package engine

import (
	"context"
	"io"
	"net/http"

	"pixelpipe/internal/pipeline"
	"pixelpipe/internal/telemetry"
	"pixelpipe/internal/transform"
)

type Engine struct {
	runner    *pipeline.Runner
	transform transform.Transformer
	metrics   *http.Server
}

// Run blocks until the pipe loop ends. Cancelling ctx stops the loop at the
// next frame boundary.
func (e *Engine) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			e.runner.Stop()
		case <-done:
		}
	}()

	defer e.close()
	return e.runner.Run(ctx)
}

func (e *Engine) close() {
	if c, ok := e.transform.(io.Closer); ok {
		_ = c.Close()
	}
	telemetry.Shutdown(e.metrics)
}
