// Package worker consumes queued document-ingest jobs and runs them through
// the indexing pipeline.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sivakandan01/ai-backend/internal/app"
)

type IngestWorker struct {
	conn      *amqp.Connection
	svc       *app.RAGService
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, svc *app.RAGService, queueName string) *IngestWorker {
	return &IngestWorker{
		conn:      conn,
		svc:       svc,
		queueName: queueName,
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	// One job at a time: ingestion is embedding-bound and already fans out
	// per chunk internally.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var job app.IngestJob
				if err := json.Unmarshal(d.Body, &job); err != nil {
					log.Printf("ingest worker decode job failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				// The pipeline records failures on the registry row before
				// returning, so failed jobs are dropped instead of
				// redelivered forever.
				if err := w.svc.ProcessJob(workerCtx, job); err != nil {
					log.Printf("ingest worker: document %s failed: %v", job.DocumentID, err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
