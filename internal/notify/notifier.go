package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/metrics"
	"github.com/zulandar/switchboard/internal/models"
)

// DefaultSendTimeout bounds one platform call.
const DefaultSendTimeout = 10 * time.Second

// Notifier posts a new-thread alert when a guest's first message is
// accepted. It satisfies relay.Observer; failures are logged, never surfaced
// to the guest.
type Notifier struct {
	adapter     Adapter
	channelID   string
	sendTimeout time.Duration
	log         zerolog.Logger
}

// NotifierOpts holds parameters for creating a Notifier.
type NotifierOpts struct {
	Adapter     Adapter
	ChannelID   string
	SendTimeout time.Duration // defaults to DefaultSendTimeout
	Log         zerolog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(opts NotifierOpts) (*Notifier, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("notify: adapter is required")
	}
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Notifier{
		adapter:     opts.Adapter,
		channelID:   opts.ChannelID,
		sendTimeout: timeout,
		log:         opts.Log,
	}, nil
}

// OnAccepted alerts operators about new guest threads.
func (n *Notifier) OnAccepted(msg models.Message, firstInThread bool) {
	if !firstInThread || msg.Role != models.RoleGuest {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.sendTimeout)
	defer cancel()

	evt := FormatNewThread(msg)
	err := n.adapter.Send(ctx, OutboundMessage{
		ChannelID: n.channelID,
		Text:      evt.Title,
		Events:    []FormattedEvent{evt},
	})
	record("new_thread", err)
	if err != nil {
		n.log.Warn().Err(err).Str("thread", msg.ThreadID).Msg("new-thread alert failed")
		return
	}
	n.log.Debug().Str("thread", msg.ThreadID).Msg("new-thread alert sent")
}

func record(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.NotificationsSent.WithLabelValues(kind, outcome).Inc()
}
