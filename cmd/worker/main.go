package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"llm-fusion/internal/app"
	"llm-fusion/internal/httputil"
	"llm-fusion/internal/orchestrator"
	"llm-fusion/internal/queue"
)

func main() {
	deps, err := app.Build(context.Background())
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	if deps.Queue == nil {
		deps.Log.Error("worker requires QUEUE_PROVIDER=nats")
		os.Exit(1)
	}
	deps.Log.Info("orchestration worker starting")

	g, ctx := errgroup.WithContext(context.Background())

	// Run queue worker
	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeOrchestrate, func(ctx context.Context, task queue.Task) error {
			var req orchestrator.Request
			if err := json.Unmarshal(task.Payload, &req); err != nil {
				return err
			}
			return handleOrchestrate(ctx, deps, task, req)
		})
	})

	// Run health check server
	g.Go(func() error {
		return httputil.ServeHealth(deps.Log, deps.Config.Port, "worker")
	})

	// Wait for either to fail
	if err := g.Wait(); err != nil {
		deps.Log.Error("worker stopped", "err", err)
	}
}

// handleOrchestrate runs one queued orchestration. Its result lands in the
// cache, so later interactive calls with the same arguments are hits.
func handleOrchestrate(ctx context.Context, deps app.Deps, task queue.Task, req orchestrator.Request) error {
	resp, err := deps.Orchestrator.Orchestrate(ctx, req)
	if err != nil {
		return fmt.Errorf("orchestration failed: %w", err)
	}
	deps.Log.Info("background orchestration complete",
		"task_id", task.ID,
		"strategy", resp.Result.Strategy,
		"providers", resp.Result.Providers,
		"cached", resp.Cached,
		"elapsed_ms", resp.Elapsed.Milliseconds(),
	)
	return nil
}
