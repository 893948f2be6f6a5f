package cerr

import (
	"net/http"
	"strconv"

	"connectrpc.com/connect"
)

// Code follows the gRPC status code numbering.
type Code int

const (
	OK                 = Code(0)
	Canceled           = Code(1)
	Unknown            = Code(2)
	InvalidArgument    = Code(3)
	DeadlineExceeded   = Code(4)
	NotFound           = Code(5)
	AlreadyExists      = Code(6)
	PermissionDenied   = Code(7)
	ResourceExhausted  = Code(8)
	FailedPrecondition = Code(9)
	Aborted            = Code(10)
	OutOfRange         = Code(11)
	Unimplemented      = Code(12)
	Internal           = Code(13)
	Unavailable        = Code(14)
	DataLoss           = Code(15)
	Unauthenticated    = Code(16)
)

type codeInfo struct {
	name    string
	connect connect.Code
	http    int
}

var codeTable = map[Code]codeInfo{
	OK:                 {"OK", 0, http.StatusOK},
	Canceled:           {"Canceled", connect.CodeCanceled, 499},
	Unknown:            {"Unknown", connect.CodeUnknown, http.StatusInternalServerError},
	InvalidArgument:    {"InvalidArgument", connect.CodeInvalidArgument, http.StatusBadRequest},
	DeadlineExceeded:   {"DeadlineExceeded", connect.CodeDeadlineExceeded, http.StatusGatewayTimeout},
	NotFound:           {"NotFound", connect.CodeNotFound, http.StatusNotFound},
	AlreadyExists:      {"AlreadyExists", connect.CodeAlreadyExists, http.StatusConflict},
	PermissionDenied:   {"PermissionDenied", connect.CodePermissionDenied, http.StatusForbidden},
	ResourceExhausted:  {"ResourceExhausted", connect.CodeResourceExhausted, http.StatusTooManyRequests},
	FailedPrecondition: {"FailedPrecondition", connect.CodeFailedPrecondition, http.StatusPreconditionFailed},
	Aborted:            {"Aborted", connect.CodeAborted, http.StatusConflict},
	OutOfRange:         {"OutOfRange", connect.CodeOutOfRange, http.StatusBadRequest},
	Unimplemented:      {"Unimplemented", connect.CodeUnimplemented, http.StatusNotImplemented},
	Internal:           {"Internal", connect.CodeInternal, http.StatusInternalServerError},
	Unavailable:        {"Unavailable", connect.CodeUnavailable, http.StatusServiceUnavailable},
	DataLoss:           {"DataLoss", connect.CodeDataLoss, http.StatusInternalServerError},
	Unauthenticated:    {"Unauthenticated", connect.CodeUnauthenticated, http.StatusUnauthorized},
}

func (c Code) String() string {
	if info, ok := codeTable[c]; ok {
		return info.name
	}
	return "Code(" + strconv.Itoa(int(c)) + ")"
}

func NewCodeFromConnectError(err error) Code {
	cc := connect.CodeOf(err)
	for c, info := range codeTable {
		if c != OK && info.connect == cc {
			return c
		}
	}
	return Unknown
}

func (c Code) ConnectCode() connect.Code {
	if info, ok := codeTable[c]; ok {
		return info.connect
	}
	return connect.CodeUnknown
}

func (c Code) HTTPCode() int {
	if info, ok := codeTable[c]; ok {
		return info.http
	}
	return http.StatusInternalServerError
}
