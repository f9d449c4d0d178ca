/*
Package log provides structured logging for dcc using zerolog.

A single package-level Logger is configured once via Init and shared by every
package; component loggers (WithComponent, WithPeerURI, WithProjectName,
WithBucketID) attach context fields without threading a logger value through
every constructor.

Usage:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	executorLog := log.WithComponent("executor").With().Str("bucket_id", id).Logger()
	executorLog.Info().Msg("bucket claimed")

JSON output is for production; console (zerolog.ConsoleWriter) is for local
runs. Fatal exits the process and should only be used for unrecoverable
startup errors (e.g. the data directory cannot be opened).
*/
package log
