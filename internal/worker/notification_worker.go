package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/proptrade-auth/internal/mail"
)

const defaultSendTimeout = 10 * time.Second

// MailWorker delivers email on a bounded pool of goroutines. Enqueue never
// blocks the caller; a full queue drops the message.
type MailWorker struct {
	mailer      mail.Mailer
	logger      *zap.Logger
	workers     int
	sendTimeout time.Duration
	queue       chan mail.Message

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewMailWorker creates an unstarted worker pool.
func NewMailWorker(mailer mail.Mailer, logger *zap.Logger, workers, queueSize int) *MailWorker {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailWorker{
		mailer:      mailer,
		logger:      logger,
		workers:     workers,
		sendTimeout: defaultSendTimeout,
		queue:       make(chan mail.Message, queueSize),
	}
}

// Start launches the worker goroutines.
func (w *MailWorker) Start() {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
}

// Enqueue hands msg to the pool and reports whether it was accepted.
func (w *MailWorker) Enqueue(msg mail.Message) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.logger.Warn("mail worker stopped, dropping message", zap.String("subject", msg.Subject))
		return false
	}
	select {
	case w.queue <- msg:
		return true
	default:
		w.logger.Warn("mail queue full, dropping message", zap.String("subject", msg.Subject))
		return false
	}
}

// Stop refuses new messages and waits for queued ones to be delivered.
func (w *MailWorker) Stop() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *MailWorker) run() {
	defer w.wg.Done()
	for msg := range w.queue {
		w.deliver(msg)
	}
}

func (w *MailWorker) deliver(msg mail.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), w.sendTimeout)
	defer cancel()

	if err := w.mailer.Send(ctx, msg); err != nil {
		w.logger.Error("mail delivery failed", zap.String("subject", msg.Subject), zap.Error(err))
	}
}
