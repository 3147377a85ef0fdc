package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/models"
)

// ThreadLister supplies the current thread summaries.
type ThreadLister interface {
	ListThreads(ctx context.Context) ([]models.ThreadSummary, error)
}

// Digest posts, on a cron schedule, the threads whose last message came from
// a guest.
type Digest struct {
	threads   ThreadLister
	adapter   Adapter
	channelID string
	schedule  string
	log       zerolog.Logger
	now       func() time.Time
}

// DigestOpts holds parameters for creating a Digest.
type DigestOpts struct {
	Threads   ThreadLister
	Adapter   Adapter
	ChannelID string
	Schedule  string // 5-field cron expression
	Log       zerolog.Logger
}

// NewDigest creates a Digest.
func NewDigest(opts DigestOpts) (*Digest, error) {
	if opts.Threads == nil {
		return nil, fmt.Errorf("notify: digest: threads is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("notify: digest: adapter is required")
	}
	if _, err := cronParser.Parse(opts.Schedule); err != nil {
		return nil, fmt.Errorf("notify: digest: schedule %q: %w", opts.Schedule, err)
	}
	return &Digest{
		threads:   opts.Threads,
		adapter:   opts.Adapter,
		channelID: opts.ChannelID,
		schedule:  opts.Schedule,
		log:       opts.Log,
		now:       time.Now,
	}, nil
}

// Post sends one digest now. It reports false when nothing was waiting.
func (d *Digest) Post(ctx context.Context) (bool, error) {
	threads, err := d.threads.ListThreads(ctx)
	if err != nil {
		return false, fmt.Errorf("notify: digest: %w", err)
	}
	evt, ok := FormatDigest(threads, d.now())
	if !ok {
		return false, nil
	}
	err = d.adapter.Send(ctx, OutboundMessage{
		ChannelID: d.channelID,
		Text:      evt.Title,
		Events:    []FormattedEvent{evt},
	})
	record("digest", err)
	if err != nil {
		return false, fmt.Errorf("notify: digest: %w", err)
	}
	return true, nil
}

// Run posts a digest each time the schedule fires until ctx is cancelled.
func (d *Digest) Run(ctx context.Context) error {
	for {
		wait := nextCronDuration(d.schedule, d.now())
		if wait <= 0 {
			wait = time.Minute
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		sent, err := d.Post(ctx)
		switch {
		case err != nil:
			d.log.Warn().Err(err).Msg("digest failed")
		case sent:
			d.log.Info().Msg("digest posted")
		default:
			d.log.Debug().Msg("digest skipped, no waiting threads")
		}
	}
}
