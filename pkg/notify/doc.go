// Package notify delivers bucket failure/repair notices to the two
// configured channels: mail (net/smtp) for the operator mailbox and a
// single chat room (webhook POST) for the team. A Notifier subscribes to
// an events.Broker and dispatches both from EventBucketFailed,
// EventBucketProcessingFailed and EventBucketRepaired.
package notify
