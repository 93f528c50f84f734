package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"whozere-relay/internal/service"
)

// fakeSource serves queued messages, then blocks until ctx is done.
type fakeSource struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (s *fakeSource) FetchMessage(ctx context.Context) (*kafka.Message, error) {
	s.mu.Lock()
	if len(s.messages) == 0 {
		s.mu.Unlock()
		s.cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	msg := s.messages[0]
	s.messages = s.messages[1:]
	s.mu.Unlock()
	return &msg, nil
}

func (s *fakeSource) Commit(_ context.Context, msg *kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, msg.Offset)
	return nil
}

type scriptedProcessor struct {
	errs  map[string][]error
	calls map[string]int
}

func (p *scriptedProcessor) Handle(_ context.Context, payload []byte) (service.Result, error) {
	key := string(payload)
	n := p.calls[key]
	p.calls[key]++
	if n < len(p.errs[key]) && p.errs[key][n] != nil {
		return service.Result{}, p.errs[key][n]
	}
	return service.Result{Success: true, Message: service.MsgAlertSent}, nil
}

func TestWorkerCommitsEveryMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &fakeSource{
		messages: []kafka.Message{
			{Offset: 1, Value: []byte("ok")},
			{Offset: 2, Value: []byte("bad")},
			{Offset: 3, Value: []byte("flaky")},
			{Offset: 4, Value: []byte("undeliverable")},
		},
		cancel: cancel,
	}
	processor := &scriptedProcessor{
		errs: map[string][]error{
			"bad":           {fmt.Errorf("%w: missing username", service.ErrInvalidPayload)},
			"flaky":         {fmt.Errorf("%w: timeout", service.ErrStorage), nil},
			"undeliverable": {fmt.Errorf("%w: gateway down", service.ErrDelivery)},
		},
		calls: map[string]int{},
	}

	w := NewWorker(source, processor, zap.NewNop(), WithRetry(3, time.Millisecond))
	require.NoError(t, w.Run(ctx))

	assert.Equal(t, []int64{1, 2, 3, 4}, source.committed)
	assert.Equal(t, 1, processor.calls["bad"])
	assert.Equal(t, 2, processor.calls["flaky"])
	assert.Equal(t, 1, processor.calls["undeliverable"])
}

func TestWorkerGivesUpAfterMaxAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storageErr := fmt.Errorf("%w: redis down", service.ErrStorage)
	source := &fakeSource{messages: []kafka.Message{{Offset: 7, Value: []byte("x")}}, cancel: cancel}
	processor := &scriptedProcessor{
		errs:  map[string][]error{"x": {storageErr, storageErr, storageErr, storageErr}},
		calls: map[string]int{},
	}

	w := NewWorker(source, processor, zap.NewNop(), WithRetry(2, time.Millisecond))
	require.NoError(t, w.Run(ctx))

	assert.Equal(t, 2, processor.calls["x"])
	assert.Equal(t, []int64{7}, source.committed)
}

type brokenSource struct{}

func (brokenSource) FetchMessage(context.Context) (*kafka.Message, error) {
	return nil, errors.New("broker unreachable")
}
func (brokenSource) Commit(context.Context, *kafka.Message) error { return nil }

func TestWorkerReturnsFetchErrors(t *testing.T) {
	w := NewWorker(brokenSource{}, &scriptedProcessor{calls: map[string]int{}}, zap.NewNop())
	assert.EqualError(t, w.Run(context.Background()), "broker unreachable")
}
