package contract

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aced-network/aced/internal/metrics"
)

const (
	// submitRetryBase is the first retry delay after a failed submission.
	submitRetryBase = 2 * time.Second
	// submitRetryMax caps the exponential backoff.
	submitRetryMax = 60 * time.Second
	// submitQueueDepth bounds the pending-vote queue; beyond it the
	// enqueue blocks, which is the desired back-pressure.
	submitQueueDepth = 64
)

// Submitter serializes all vote submissions to the anchor contract on a
// single goroutine, retrying transport failures with exponential backoff.
// The queue grows until retries succeed or an operator intervenes.
type Submitter struct {
	client    Client
	logger    *zap.Logger
	queue     chan Vote
	retryBase time.Duration
}

// NewSubmitter creates a submitter over the given client.
func NewSubmitter(client Client, logger *zap.Logger) *Submitter {
	return &Submitter{
		client:    client,
		logger:    logger,
		queue:     make(chan Vote, submitQueueDepth),
		retryBase: submitRetryBase,
	}
}

// Enqueue hands a vote to the contract thread.
func (s *Submitter) Enqueue(vote Vote) {
	s.queue <- vote
}

// Pending returns the number of votes waiting in the queue.
func (s *Submitter) Pending() int {
	return len(s.queue)
}

// Run drains the queue until the context is cancelled.
func (s *Submitter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case vote := <-s.queue:
			s.submit(ctx, vote)
		}
	}
}

func (s *Submitter) submit(ctx context.Context, vote Vote) {
	delay := s.retryBase
	for attempt := 1; ; attempt++ {
		err := s.client.SubmitVote(ctx, vote)
		if err == nil {
			metrics.VotesSubmitted.WithLabelValues("ok").Inc()
			if attempt > 1 {
				s.logger.Info("vote submission recovered",
					zap.Uint64("block_id", vote.BlockID),
					zap.Int("attempts", attempt),
				)
			}
			return
		}

		metrics.VotesSubmitted.WithLabelValues("error").Inc()
		s.logger.Warn("vote submission failed",
			zap.Uint64("block_id", vote.BlockID),
			zap.Int("attempt", attempt),
			zap.Duration("next_retry", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > submitRetryMax {
			delay = submitRetryMax
		}
	}
}
