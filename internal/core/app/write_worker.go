package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"nbcollab/internal/core/ports"
	"nbcollab/internal/data/queue"
	"nbcollab/internal/shared/observability"
)

const (
	writeQueueCapacity = 256
	writeBatchSize     = 16
	writeFlushInterval = 200 * time.Millisecond
	drainTimeout       = 10 * time.Second
)

func (a *App) startWriteWorker() {
	if a == nil || a.history == nil || a.workerCancel != nil {
		return
	}
	if a.writeQueue == nil {
		a.writeQueue = queue.NewMemoryQueue(writeQueueCapacity)
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.workerCancel = cancel
	a.workerDone = make(chan struct{})
	go a.runWriteWorker(ctx)
}

func (a *App) runWriteWorker(ctx context.Context) {
	defer close(a.workerDone)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batch, err := a.writeQueue.DequeueBatch(ctx, writeBatchSize, writeFlushInterval)
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil && !errors.Is(err, io.EOF) {
			slog.Warn("write queue dequeue failed", "error", err)
			continue
		}
		if len(batch) > 0 {
			a.applyWriteBatch(ctx, batch)
		}
		a.updateQueueMetrics()
		if errors.Is(err, io.EOF) {
			return
		}
	}
}

// enqueueWrite hands req to the write worker, or applies it directly when no
// worker was ever started. Writes after shutdown are dropped.
func (a *App) enqueueWrite(req ports.WriteRequest) error {
	if a == nil || a.history == nil {
		return nil
	}
	if a.writeQueue == nil {
		return a.applyWriteRequest(context.Background(), req)
	}
	switch result := a.writeQueue.Enqueue(req); result {
	case ports.EnqueueAccepted:
		a.updateQueueMetrics()
		return nil
	case ports.EnqueueDropped:
		observability.WriteQueueDroppedTotal.Inc()
		return fmt.Errorf("write queue full, %s for %s dropped", req.Operation, req.NotebookID)
	default:
		return fmt.Errorf("unknown enqueue result %q", result)
	}
}

// applyWriteBatch applies each request in order. A failing request is logged
// and does not stop the rest of the batch.
func (a *App) applyWriteBatch(ctx context.Context, batch []ports.WriteRequest) {
	for _, req := range batch {
		if err := a.applyWriteRequest(ctx, req); err != nil {
			observability.WriteQueueApplyErrorsTotal.Inc()
			slog.Warn("history write failed", "operation", req.Operation, "notebook", req.NotebookID, "error", err)
			continue
		}
		observability.WriteQueueProcessedTotal.Inc()
	}
}

func (a *App) applyWriteRequest(ctx context.Context, req ports.WriteRequest) error {
	if a == nil || a.history == nil {
		return nil
	}
	switch req.Operation {
	case ports.WriteOperationSaveGraph:
		return a.history.SaveGraph(ctx, req.NotebookID, req.Name, req.Graph)
	case ports.WriteOperationSaveResult:
		_, err := a.history.SaveResult(ctx, req.NotebookID, req.Group, req.Result)
		return err
	case ports.WriteOperationRecordExecutions:
		_, err := a.history.RecordExecutions(ctx, req.NotebookID, req.Events)
		return err
	default:
		return fmt.Errorf("unsupported write operation %q", req.Operation)
	}
}

func (a *App) stopWriteWorker(ctx context.Context) error {
	if a == nil {
		return nil
	}
	if a.workerCancel != nil {
		a.workerCancel()
		a.workerCancel = nil
	}
	if a.workerDone != nil {
		select {
		case <-a.workerDone:
		case <-ctx.Done():
			return ctx.Err()
		}
		a.workerDone = nil
	}
	if a.writeQueue == nil {
		return nil
	}
	if err := a.writeQueue.Close(); err != nil {
		return err
	}
	err := a.drainWriteQueue(ctx)
	a.updateQueueMetrics()
	return err
}

// drainWriteQueue applies whatever is still buffered in a closed queue.
func (a *App) drainWriteQueue(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := a.writeQueue.DequeueBatch(ctx, writeBatchSize, 0)
		if len(batch) > 0 {
			a.applyWriteBatch(ctx, batch)
		}
		if errors.Is(err, io.EOF) || (err == nil && len(batch) == 0) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (a *App) updateQueueMetrics() {
	if a == nil {
		return
	}
	depth := 0
	if mq, ok := a.writeQueue.(*queue.MemoryQueue); ok {
		depth = mq.Len()
	}
	observability.WriteQueueDepth.Set(float64(depth))
}
