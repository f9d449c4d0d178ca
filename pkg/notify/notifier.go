package notify

import (
	"context"

	"github.com/cuemby/dcc/pkg/events"
	"github.com/cuemby/dcc/pkg/log"
)

// Notifier subscribes to a Broker and fans bucket failure/repair events out
// to the configured mail and chat adapters. Either adapter may be nil, in
// which case that channel is simply skipped.
type Notifier struct {
	broker *events.Broker
	sub    events.Subscriber

	mail *MailAdapter
	chat *ChatAdapter

	operatorEmail string
	guiURLFunc    func(projectName, bucketID string) string
}

// NewNotifier builds a Notifier. guiURLFunc resolves a (project, bucket)
// pair to the URL included in failure/repair messages; pass nil for an
// empty URL.
func NewNotifier(broker *events.Broker, mail *MailAdapter, chat *ChatAdapter, operatorEmail string, guiURLFunc func(projectName, bucketID string) string) *Notifier {
	return &Notifier{broker: broker, mail: mail, chat: chat, operatorEmail: operatorEmail, guiURLFunc: guiURLFunc}
}

// Start subscribes to the broker and begins dispatching in a background
// goroutine. Call Stop to unsubscribe.
func (n *Notifier) Start() {
	n.sub = n.broker.Subscribe()
	go n.run()
}

// Stop unsubscribes from the broker, ending the dispatch goroutine once its
// channel drains.
func (n *Notifier) Stop() {
	if n.sub != nil {
		n.broker.Unsubscribe(n.sub)
	}
}

func (n *Notifier) run() {
	for event := range n.sub {
		switch event.Type {
		case events.EventBucketFailed, events.EventBucketProcessingFailed:
			n.dispatch(event, true)
		case events.EventBucketRepaired:
			n.dispatch(event, false)
		}
	}
}

func (n *Notifier) dispatch(event *events.Event, failed bool) {
	project := event.Metadata["project_name"]
	bucketName := event.Metadata["bucket_name"]
	bucketID := event.Metadata["bucket_id"]

	guiURL := ""
	if n.guiURLFunc != nil {
		guiURL = n.guiURLFunc(project, bucketID)
	}

	if n.mail != nil && n.operatorEmail != "" {
		body := FailureMessage(project, bucketName, guiURL)
		subject := "[dcc] " + project + " " + bucketName + " failed"
		if !failed {
			body = FixedMessage(project, bucketName, guiURL)
			subject = "[dcc] " + project + " " + bucketName + " fixed"
		}
		if err := n.mail.Send(n.operatorEmail, subject, body); err != nil {
			log.Logger.Error().Err(err).Str("bucket_id", bucketID).Msg("failed to mail bucket notification")
		}
	}

	if n.chat != nil {
		ctx := context.Background()
		if err := n.chat.Notify(ctx, project, bucketName, failed, guiURL, ""); err != nil {
			log.Logger.Error().Err(err).Str("bucket_id", bucketID).Msg("failed to post chat notification")
		}
	}
}
