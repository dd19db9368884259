package temporal

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker creates and starts a Temporal worker on the given task queue.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(ComponentMigrationWorkflow)
	w.RegisterActivity(RetrieveActivity)
	w.RegisterActivity(GenerateActivity)
	w.RegisterActivity(ValidateActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

// ExecuteMigration starts a migration workflow and blocks until it completes.
func ExecuteMigration(ctx context.Context, c client.Client, taskQueue string, input MigrationInput) (*MigrationOutput, error) {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("migration-%d", time.Now().UnixNano()),
		TaskQueue: taskQueue,
	}

	run, err := c.ExecuteWorkflow(ctx, opts, ComponentMigrationWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("starting migration workflow: %w", err)
	}

	var out MigrationOutput
	if err := run.Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("migration workflow: %w", err)
	}
	return &out, nil
}
