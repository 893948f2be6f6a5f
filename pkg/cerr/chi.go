package cerr

import (
	"context"
	"net/http"

	"github.com/kazz187/novelguild/pkg/clog"
)

type responseReceiverKey struct{}

type responseReceiver struct {
	response any
	err      error
}

func contextWithResponseReceiver(ctx context.Context, rr *responseReceiver) context.Context {
	return context.WithValue(ctx, responseReceiverKey{}, rr)
}

func responseReceiverFromContext(ctx context.Context) *responseReceiver {
	if rr, ok := ctx.Value(responseReceiverKey{}).(*responseReceiver); ok {
		return rr
	}
	return nil
}

// SetJSONResponse records body to be written as JSON once the handler returns.
func SetJSONResponse(ctx context.Context, body any) {
	if rr := responseReceiverFromContext(ctx); rr != nil {
		rr.response = body
	}
}

// SetJSONError records err to be written as a JSON error once the handler returns.
func SetJSONError(ctx context.Context, err error) {
	if rr := responseReceiverFromContext(ctx); rr != nil {
		rr.err = err
	}
}

func SetNewJSONError(ctx context.Context, code Code, msg string, err error) {
	SetJSONError(ctx, NewError(code, msg, err))
}

// NewConvertConnectErrorChiMiddleware writes whatever the handler recorded
// with SetJSONResponse or SetJSONError. A handler that already wrote to the
// response (an event stream, for example) keeps it; a late error is only
// logged.
func NewConvertConnectErrorChiMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rr := &responseReceiver{}
			ctx := contextWithResponseReceiver(r.Context(), rr)
			tw := &trackingWriter{ResponseWriter: rw}
			next.ServeHTTP(tw, r.WithContext(ctx))
			if tw.wrote {
				if rr.err != nil && !isCanceled(rr.err) {
					clog.AddError(ctx, rr.err)
				}
				return
			}
			ExtractToHTTPResponse(ctx, rw, rr)
		})
	}
}

type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *trackingWriter) WriteHeader(status int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

func (w *trackingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *trackingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
