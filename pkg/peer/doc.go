// Package peer wires together one running dcc process: coordination,
// election, the bucket queue and scanner, the Assignment/Liveness gRPC
// surface, the build executor, the failure envelope, the notifier, metrics
// and health endpoints. Everything else in this module is a library; peer
// is where a group member actually starts.
package peer
