/*
Package rpc is the Assignment/Liveness RPC surface: a "Coordinator" gRPC
service with NextBucket and Processing methods, carried over a hand-written
JSON codec instead of generated protobuf stubs - there is no .proto source
available to compile one from, so the request/response structs, the
encoding.Codec, and the grpc.ServiceDesc are all written by hand here
instead of by a protoc plugin.

Server implements CoordinatorServer against an Elector (is this peer
leader), a Popper (the scanner's queue pop), the Store, and a Tracker (this
peer's own currently_processed_bucket_id). NextBucket only succeeds against
the current leader; Processing answers from the local Tracker regardless of
role, since the transport is symmetric - every peer may call every other.

	grpcServer := grpc.NewServer()
	rpc.RegisterCoordinatorServer(grpcServer, rpc.NewServer(elector, scanner, store, tracker, selfURI))

	conn, _ := grpc.NewClient(leaderAddr, grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")))
	client := rpc.NewCoordinatorClient(conn)
	resp, _ := client.NextBucket(ctx, &rpc.NextBucketRequest{RequestorURI: selfURI})
*/
package rpc
