package gqlexec

import (
	"context"
	"fmt"
	"strings"
)

// Transport identifies how an endpoint is reached.
type Transport int

const (
	TransportHTTP Transport = iota + 1
	TransportWebSocket
)

func (t Transport) String() string {
	switch t {
	case TransportHTTP:
		return "http"
	case TransportWebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

// Executor runs a single attempt of an operation, feeding every response to
// the sink.
type Executor interface {
	Execute(ctx context.Context, req *Request, sink Sink) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req *Request, sink Sink) error

func (f ExecutorFunc) Execute(ctx context.Context, req *Request, sink Sink) error {
	return f(ctx, req, sink)
}

// ClassifyEndpoint picks the transport from the endpoint scheme.
// It performs no I/O.
func ClassifyEndpoint(endpoint string) (Transport, error) {
	switch {
	case strings.HasPrefix(endpoint, "http://"), strings.HasPrefix(endpoint, "https://"):
		return TransportHTTP, nil
	case strings.HasPrefix(endpoint, "ws://"), strings.HasPrefix(endpoint, "wss://"):
		return TransportWebSocket, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidEndpointScheme, endpoint)
	}
}

// SelectExecutor returns the executor serving the endpoint's transport.
func (client *GraphQLClient) SelectExecutor(endpoint string) (Executor, error) {
	transport, err := ClassifyEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	return client.executorFor(transport), nil
}

func (client *GraphQLClient) executorFor(transport Transport) Executor {
	if transport == TransportHTTP {
		return client.httpExecutor
	}
	return client.wsExecutor
}
