package cerr

import (
	"context"

	"connectrpc.com/connect"
)

// NewConvertConnectErrorInterceptor turns handler errors into connect errors
// carrying the cerr code and detail messages. Client calls pass through.
func NewConvertConnectErrorInterceptor() connect.Interceptor {
	return convertInterceptor{}
}

type convertInterceptor struct{}

func (convertInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		res, err := next(ctx, req)
		if err != nil {
			return nil, ExtractConnectError(ctx, err)
		}
		return res, nil
	}
}

func (convertInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (convertInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := next(ctx, conn); err != nil {
			return ExtractConnectError(ctx, err)
		}
		return nil
	}
}
