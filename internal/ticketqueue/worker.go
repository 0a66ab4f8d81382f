package ticketqueue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"golang.org/x/sync/errgroup"
)

// Handler processes one job. Returning an error sends the job through the
// retry schedule.
type Handler func(ctx context.Context, job Job) error

// Worker consumes the queue with a fixed number of goroutines and a mover
// loop that promotes due retries.
type Worker struct {
	queue       *Queue
	handler     Handler
	concurrency int
	log         zerolog.Logger
}

func NewWorker(queue *Queue, handler Handler, concurrency int, log zerolog.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:       queue,
		handler:     handler,
		concurrency: concurrency,
		log:         log.With().Str("component", "ticketqueue-worker").Logger(),
	}
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if _, err := w.queue.PromoteDue(ctx, time.Now().UTC()); err != nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("failed to promote delayed jobs")
				}
			}
		}
	})

	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				job, err := w.queue.Dequeue(ctx, 2*time.Second)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					w.log.Error().Err(err).Msg("dequeue failed")
					continue
				}
				if job == nil {
					continue
				}
				if err := w.handler(ctx, *job); err != nil {
					if rerr := w.queue.Retry(ctx, *job, err); rerr != nil {
						w.log.Error().Err(rerr).Str("job_id", job.ID).Msg("failed to reschedule job")
					}
					continue
				}
				w.log.Info().Str("job_id", job.ID).Str("order_id", job.OrderID.String()).
					Msg("ticket job completed")
			}
		})
	}

	return g.Wait()
}

// TicketDocumentHandler renders the ticket document for a confirmed line
// item: a PNG QR code carrying the order/ticket references and an HMAC
// signature that gate staff can verify offline.
func TicketDocumentHandler(outputDir, secret string, log zerolog.Logger) Handler {
	return func(ctx context.Context, job Job) error {
		payload := ticketPayload(secret, job.OrderID, job.TicketID, job.Quantity)

		png, err := qrcode.Encode(payload, qrcode.Medium, 256)
		if err != nil {
			return fmt.Errorf("encode ticket qr for order %s: %w", job.OrderID, err)
		}
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("create ticket output dir: %w", err)
		}
		name := fmt.Sprintf("%s-%s.png", job.OrderID, job.TicketID)
		if err := os.WriteFile(filepath.Join(outputDir, name), png, 0o644); err != nil {
			return fmt.Errorf("write ticket document %s: %w", name, err)
		}

		log.Info().Str("order_id", job.OrderID.String()).Str("ticket_id", job.TicketID.String()).
			Str("email", job.PurchaserEmail).Msg("ticket document generated")
		return nil
	}
}

func ticketPayload(secret string, orderID, ticketID uuid.UUID, quantity int) string {
	data := fmt.Sprintf("%s:%s:%d", orderID, ticketID, quantity)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("order:%s;ticket:%s;quantity:%d;signature:%s", orderID, ticketID, quantity, signature)
}
