package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"pixelpipe/internal/config"
	"pixelpipe/internal/logging"
	"pixelpipe/internal/pipeline"
	"pixelpipe/internal/telemetry"
	"pixelpipe/internal/transform"
)

const healthTimeout = 3 * time.Second

// Bootstrap builds the transform named by cfg, starts the metrics endpoint
// when configured and wires the pipe loop between in and out.
func Bootstrap(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) (*Engine, error) {
	// 1. transform
	t, err := buildTransform(ctx, cfg.Transform)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}

	// 2. pipe loop
	runner := pipeline.NewRunner(in, out, t, transform.Options(cfg.Transform.Options),
		pipeline.WithMaxFrameBytes(cfg.Pipe.MaxFrameBytes),
		pipeline.WithEmitHeader(cfg.Pipe.EmitHeader),
		pipeline.WithPerFrameDelay(time.Duration(cfg.Debug.PerFrameDelayMS)*time.Millisecond),
		pipeline.WithPrintCounter(cfg.Debug.PrintCounter),
	)

	// 3. metrics
	metrics := telemetry.Expose(cfg.Metrics.Port)

	logging.L().Info("pixel pipe ready",
		"transform", name(cfg.Transform),
		"type", cfg.Transform.Type,
		"options", len(cfg.Transform.Options),
		"emit_header", cfg.Pipe.EmitHeader,
		"metrics_port", cfg.Metrics.Port)

	return &Engine{
		runner:    runner,
		transform: t,
		metrics:   metrics,
	}, nil
}

func buildTransform(ctx context.Context, tc config.TransformConfig) (transform.Transformer, error) {
	switch tc.Type {
	case config.TypeInProc, "":
		return transform.New(name(tc))
	case config.TypeGRPC:
		cli, err := transform.NewGRPCClient(tc.Address, tc.Name,
			time.Duration(tc.TimeoutMS)*time.Millisecond,
			transform.RetryPolicy{
				Attempts: tc.RetryPolicy.Attempts,
				Backoff:  time.Duration(tc.RetryPolicy.BackoffMS) * time.Millisecond,
			})
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", tc.Address, err)
		}
		hctx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()
		if err := cli.Health(hctx); err != nil {
			_ = cli.Close()
			return nil, fmt.Errorf("remote %s at %s: %w", tc.Name, tc.Address, err)
		}
		return cli, nil
	default:
		return nil, fmt.Errorf("unsupported transformer type %q for %s", tc.Type, tc.Name)
	}
}

// name resolves the in-process default. A remote transform keeps an empty
// name so the host runs the transform it serves.
func name(tc config.TransformConfig) string {
	if tc.Name == "" && tc.Type != config.TypeGRPC {
		return transform.DefaultName
	}
	return tc.Name
}
