package jsonrpc

import "fmt"

// HTTPErrorKind discriminates the taxonomy of errors the transport layer can
// return. Exactly one of the Kind-specific fields on HTTPRequestError is
// meaningful for a given Kind.
type HTTPErrorKind int

const (
	// HTTPErrorStatus means the backend answered with a non-2xx status code.
	HTTPErrorStatus HTTPErrorKind = iota
	// HTTPErrorTimeout means the per-request timeout elapsed.
	HTTPErrorTimeout
	// HTTPErrorTransport means a network/socket-level failure occurred.
	HTTPErrorTransport
	// HTTPErrorUnknown covers anything that doesn't fit the other kinds,
	// e.g. an unsupported HTTP method.
	HTTPErrorUnknown
)

func (k HTTPErrorKind) String() string {
	switch k {
	case HTTPErrorStatus:
		return "http_error"
	case HTTPErrorTimeout:
		return "timeout"
	case HTTPErrorTransport:
		return "transport_error"
	default:
		return "unknown_error"
	}
}

// HTTPRequestError is the transport-level error taxonomy:
// HttpError(status), Timeout, TransportError(detail), UnknownError(detail).
type HTTPRequestError struct {
	Kind    HTTPErrorKind
	Status  int // meaningful when Kind == HTTPErrorStatus
	Message string
	Cause   error
}

func (e *HTTPRequestError) Error() string {
	switch e.Kind {
	case HTTPErrorStatus:
		return fmt.Sprintf("http error: status %d", e.Status)
	case HTTPErrorTimeout:
		return "http error: timeout"
	default:
		if e.Cause != nil {
			return fmt.Sprintf("http error: %s: %s (%v)", e.Kind, e.Message, e.Cause)
		}
		return fmt.Sprintf("http error: %s: %s", e.Kind, e.Message)
	}
}

func (e *HTTPRequestError) Unwrap() error { return e.Cause }

// NewHTTPStatusError builds an HttpError(status) variant.
func NewHTTPStatusError(status int) *HTTPRequestError {
	return &HTTPRequestError{Kind: HTTPErrorStatus, Status: status}
}

// NewHTTPTimeoutError builds the Timeout variant.
func NewHTTPTimeoutError() *HTTPRequestError {
	return &HTTPRequestError{Kind: HTTPErrorTimeout}
}

// NewTransportError builds a TransportError(detail) variant.
func NewTransportError(detail string, cause error) *HTTPRequestError {
	return &HTTPRequestError{Kind: HTTPErrorTransport, Message: detail, Cause: cause}
}

// NewUnknownHTTPError builds an UnknownError(detail) variant.
func NewUnknownHTTPError(detail string) *HTTPRequestError {
	return &HTTPRequestError{Kind: HTTPErrorUnknown, Message: detail}
}

// ClientErrorKind discriminates the JsonRpcProviderClientError union.
type ClientErrorKind int

const (
	// ClientErrorJSONRPC means the provider answered with a JSON-RPC error object.
	ClientErrorJSONRPC ClientErrorKind = iota
	// ClientErrorBackend wraps a transport-level HTTPRequestError.
	ClientErrorBackend
	// ClientErrorSerde means the response body failed to parse as a JSON-RPC
	// response, or was a Notification (a protocol violation over HTTP).
	ClientErrorSerde
)

// ClientError is the top-level error returned from Call: exactly
// one terminal error reaches the caller.
type ClientError struct {
	Kind ClientErrorKind

	// Populated when Kind == ClientErrorJSONRPC.
	Code    int64
	Message string
	Data    any

	// Populated when Kind == ClientErrorBackend.
	Backend *HTTPRequestError

	// Populated when Kind == ClientErrorSerde.
	SerdeErr  error
	SerdeText string
}

func (e *ClientError) Error() string {
	switch e.Kind {
	case ClientErrorJSONRPC:
		return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
	case ClientErrorBackend:
		return fmt.Sprintf("backend error: %v", e.Backend)
	default:
		return fmt.Sprintf("failed to decode json-rpc response: %v (body: %.200s)", e.SerdeErr, e.SerdeText)
	}
}

func (e *ClientError) Unwrap() error {
	switch e.Kind {
	case ClientErrorBackend:
		return e.Backend
	case ClientErrorSerde:
		return e.SerdeErr
	default:
		return nil
	}
}

// NewJSONRPCError builds the JsonRpcError{code,message,data} variant.
func NewJSONRPCError(code int64, message string, data any) *ClientError {
	return &ClientError{Kind: ClientErrorJSONRPC, Code: code, Message: message, Data: data}
}

// NewBackendError wraps a transport-level error as BackendError(err).
func NewBackendError(err *HTTPRequestError) *ClientError {
	return &ClientError{Kind: ClientErrorBackend, Backend: err}
}

// NewSerdeError builds the SerdeJson{err,text} variant, used both for
// outright parse failures and for rejected Notification bodies.
func NewSerdeError(err error, text string) *ClientError {
	return &ClientError{Kind: ClientErrorSerde, SerdeErr: err, SerdeText: text}
}
