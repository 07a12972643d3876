package grpcx

import (
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

type DialOptions struct {
	// Nil means plaintext; TLS between services is the mesh's job.
	TransportCredentials grpc.DialOption
	// KeepaliveTime pings idle connections so probes notice a dead peer.
	// Zero disables pings.
	KeepaliveTime time.Duration
}

// Dial returns a lazily connecting client. Nothing is dialed until the first
// RPC, so callers bound their calls with context deadlines.
func Dial(addr string, opts DialOptions, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	creds := opts.TransportCredentials
	if creds == nil {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	dialOpts := []grpc.DialOption{
		creds,
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(UnaryClientRequestIDInterceptor()),
	}
	if opts.KeepaliveTime > 0 {
		dialOpts = append(dialOpts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    opts.KeepaliveTime,
			Timeout: opts.KeepaliveTime / 2,
		}))
	}
	return grpc.NewClient(addr, append(dialOpts, extra...)...)
}
