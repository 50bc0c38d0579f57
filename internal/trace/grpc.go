package trace

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	apperrors "github.com/GriffinCanCode/hudreader/internal/errors"
)

// UnaryServerInterceptor starts a span per call from incoming metadata and
// logs the outcome.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, span := serverSpan(ctx, info.FullMethod)
		resp, err := handler(ctx, req)
		finish(ctx, span, err)
		return resp, err
	}
}

// StreamServerInterceptor does the same for streaming calls, such as
// health watches.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, span := serverSpan(ss.Context(), info.FullMethod)
		err := handler(srv, &tracedStream{ServerStream: ss, ctx: ctx})
		finish(ctx, span, err)
		return err
	}
}

func serverSpan(ctx context.Context, method string) (context.Context, *Span) {
	md, _ := metadata.FromIncomingContext(ctx)
	tc := extract(func(key string) string {
		if v := md.Get(key); len(v) > 0 {
			return v[0]
		}
		return ""
	})
	_ = grpc.SetHeader(ctx, metadata.Pairs(TraceIDKey, tc.TraceID))

	return WithContext(ctx, tc), newSpan(method, tc)
}

func finish(ctx context.Context, span *Span, err error) {
	span.End()
	if err != nil {
		span.RecordError(err)
		st := status.Convert(err)
		span.SetAttr("code", st.Code().String())
		span.SetAttr("reason", apperrors.CodeFromStatus(st).String())
		Logger(ctx).Warn("grpc call failed", "span", span)
		return
	}
	Logger(ctx).Debug("grpc call", "span", span)
}

type tracedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedStream) Context() context.Context { return s.ctx }
