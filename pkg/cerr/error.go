package cerr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"connectrpc.com/connect"
	"google.golang.org/protobuf/proto"

	"github.com/kazz187/novelguild/pkg/clog"
)

type Error struct {
	Code    Code
	Msg     string          // message returned to the caller together with Code
	Err     error           // underlying cause, logged only
	Stack   string          // captured for error level codes
	Details []proto.Message // structured details returned to the caller
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if clog.ConnectCodeToLevel(code.ConnectCode()) == clog.LevelError {
		stack := make([]byte, 4096)
		n := runtime.Stack(stack, false)
		err.Stack = string(stack[:n])
	}
	return err
}

func Newf(code Code, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...), nil)
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AddDetailMessage attaches a caller visible violation message.
func (e *Error) AddDetailMessage(msg string) *Error {
	e.Details = append(e.Details, &validate.Violation{Message: &msg})
	return e
}

// AddDetailMessageWithCode attaches a violation carrying a stable rule id.
func (e *Error) AddDetailMessageWithCode(msg string, ruleID string) *Error {
	e.Details = append(e.Details, &validate.Violation{Message: &msg, RuleId: &ruleID})
	return e
}

// DetailMessages returns the messages of violation details.
func (e *Error) DetailMessages() []string {
	var msgs []string
	for _, d := range e.Details {
		if v, ok := d.(*validate.Violation); ok {
			msgs = append(msgs, v.GetMessage())
		}
	}
	return msgs
}

func (e *Error) ConnectError() *connect.Error {
	connectErr := connect.NewError(e.Code.ConnectCode(), errors.New(e.Msg))
	for _, msg := range e.Details {
		detail, err := connect.NewErrorDetail(msg)
		if err != nil {
			continue
		}
		connectErr.AddDetail(detail)
	}
	return connectErr
}

// IsCode reports whether err wraps an *Error carrying code.
func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}

// As normalizes err into an *Error. Cancellation becomes Canceled and
// anything unclassified becomes Unknown.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if isCanceled(err) {
		return NewError(Canceled, "connection closed", err)
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr
	}
	return NewError(Unknown, "unknown error", err)
}

func isCanceled(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.Err == "operation was canceled"
}

func ExtractConnectError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) && !isCanceled(err) {
		var cerr *Error
		if !errors.As(err, &cerr) {
			clog.AddError(ctx, err)
			return connectErr
		}
	}
	ce := As(err)
	if ce.Code != Canceled {
		clog.AddError(ctx, err)
		if ce.Stack != "" {
			clog.AddStack(ctx, ce.Stack)
		}
	}
	return ce.ConnectError()
}

type httpError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// ExtractToHTTPResponse writes the response or error recorded by a handler.
// Handlers that wrote the body themselves record neither and are left alone.
func ExtractToHTTPResponse(ctx context.Context, rw http.ResponseWriter, rr *responseReceiver) {
	if rr.err == nil {
		if rr.response == nil {
			return
		}
		writeJSON(ctx, rw, http.StatusOK, rr.response)
		return
	}
	ce := As(rr.err)
	if ce.Code != Canceled {
		clog.AddError(ctx, rr.err)
		if ce.Stack != "" {
			clog.AddStack(ctx, ce.Stack)
		}
	}
	WriteJSONError(ctx, rw, ce)
}

func writeJSON(ctx context.Context, rw http.ResponseWriter, status int, body any) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		WriteJSONError(ctx, rw, NewError(Internal, "server error", err))
		return
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	if _, err := rw.Write(buf.Bytes()); err != nil {
		clog.AddError(ctx, NewError(Internal, "server error", err))
	}
}

// WriteJSONError writes e as {"code","message","details"} with the mapped
// HTTP status.
func WriteJSONError(ctx context.Context, rw http.ResponseWriter, e *Error) {
	buf := &bytes.Buffer{}
	body := httpError{Code: e.Code.String(), Message: e.Msg, Details: e.DetailMessages()}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		buf = bytes.NewBufferString(`{"code":"Internal","message":"server error"}`)
		clog.AddError(ctx, errors.Join(e, err))
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(e.Code.HTTPCode())
	if _, err := rw.Write(buf.Bytes()); err != nil {
		clog.AddError(ctx, errors.Join(e, err))
	}
}
