// Package envelope is the single choke point every externally-invoked block
// of scheduler/executor code runs through: a transient database disconnect
// is retried twice with a fresh connection, and any other error is
// classified and recorded against exactly one of a bucket, a project, or
// the operator mailbox. It never swallows an error silently.
package envelope
