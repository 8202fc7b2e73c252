package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/proptrade-auth/internal/mail"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	fail bool
	gate chan struct{}
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	if m.fail {
		return errors.New("smtp down")
	}
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func TestMailWorker_DeliversQueuedOnStop(t *testing.T) {
	mailer := &recordingMailer{fail: true}
	w := NewMailWorker(mailer, nil, 2, 8)
	w.Start()

	for i := 0; i < 5; i++ {
		require.True(t, w.Enqueue(mail.Message{To: "a@x.com", Subject: "hi"}))
	}
	w.Stop()

	assert.Equal(t, 5, mailer.count(), "delivery failures are logged, not retried")
	assert.False(t, w.Enqueue(mail.Message{}), "stopped worker rejects messages")
	w.Stop()
}

func TestMailWorker_DropsWhenFull(t *testing.T) {
	mailer := &recordingMailer{gate: make(chan struct{})}
	w := NewMailWorker(mailer, nil, 1, 1)

	require.True(t, w.Enqueue(mail.Message{Subject: "1"}))
	assert.False(t, w.Enqueue(mail.Message{Subject: "2"}))

	close(mailer.gate)
	w.Start()
	w.Stop()
	assert.Equal(t, 1, mailer.count())
}

type countingPurger struct {
	calls atomic.Int32
}

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return 3, nil
}

func TestJanitor_SweepsOnEachTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	purger := &countingPurger{}
	j := NewJanitor(purger, time.Hour, clock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Hour)
	assert.Eventually(t, func() bool { return purger.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	clock.Advance(time.Hour)
	assert.Eventually(t, func() bool { return purger.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
