package oauth2client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryClientInterceptor returns a gRPC unary client interceptor that adds the
// cached bearer token to outgoing metadata.
//
// If the server answers with codes.Unauthenticated the cache is invalidated and
// the error is returned wrapped with ErrAuthRejected; the call is not retried.
// In pass-through mode no authorization metadata is added.
//
// Usage:
//
//	conn, err := grpc.NewClient(
//	    "analytics:9090",
//	    grpc.WithUnaryInterceptor(cache.UnaryClientInterceptor()),
//	)
func (c *CredentialCache) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, err := c.outgoingContext(ctx)
		if err != nil {
			return err
		}

		return c.checkRejected(invoker(ctx, method, req, reply, cc, opts...))
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor that adds the
// cached bearer token to outgoing metadata. Stream creation failures with
// codes.Unauthenticated invalidate the cache.
func (c *CredentialCache) StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		ctx, err := c.outgoingContext(ctx)
		if err != nil {
			return nil, err
		}

		stream, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			return nil, c.checkRejected(err)
		}
		return stream, nil
	}
}

// outgoingContext attaches "authorization: Bearer <token>" using the RPC context
// for the exchange so cancellation and deadlines are respected.
func (c *CredentialCache) outgoingContext(ctx context.Context) (context.Context, error) {
	token, err := c.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("oauth2: failed to get token: %w", err)
	}
	if token == "" {
		return ctx, nil
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token), nil
}

func (c *CredentialCache) checkRejected(err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.Unauthenticated {
		c.Invalidate()
		return fmt.Errorf("%w: %w", ErrAuthRejected, err)
	}
	return err
}
