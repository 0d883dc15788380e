package gqlexec

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/jensneuse/abstractlogger"
	"go.opentelemetry.io/otel/trace"
)

// GraphQLClient executes GraphQL operations over HTTP or WebSocket,
// depending on the endpoint scheme.
type GraphQLClient struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     log.Logger
	tracer     trace.Tracer
	sleep      SleepFunc
	strictAck  bool
	ackTimeout time.Duration

	httpExecutor *HTTPExecutor
	wsExecutor   *WebSocketExecutor
}

type ClientOption func(*GraphQLClient)

func WithLogger(logger log.Logger) ClientOption {
	return func(client *GraphQLClient) {
		client.logger = logger
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(client *GraphQLClient) {
		client.httpClient = httpClient
	}
}

// WithTimeout bounds each HTTP round trip. Zero means no timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(client *GraphQLClient) {
		if client.httpClient == nil {
			client.httpClient = &http.Client{}
		}
		client.httpClient.Timeout = timeout
	}
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(client *GraphQLClient) {
		client.dialer = dialer
	}
}

// WithStrictAck makes the WebSocket handshake fail unless the first message
// from the server is a connection_ack.
func WithStrictAck(strict bool) ClientOption {
	return func(client *GraphQLClient) {
		client.strictAck = strict
	}
}

// WithAckTimeout bounds the wait for the server's first message.
func WithAckTimeout(timeout time.Duration) ClientOption {
	return func(client *GraphQLClient) {
		client.ackTimeout = timeout
	}
}

// WithSleep replaces the pause between reconnect attempts.
func WithSleep(sleep SleepFunc) ClientOption {
	return func(client *GraphQLClient) {
		client.sleep = sleep
	}
}

func WithTracer(tracer trace.Tracer) ClientOption {
	return func(client *GraphQLClient) {
		client.tracer = tracer
	}
}

func NewClient(opts ...ClientOption) *GraphQLClient {
	client := &GraphQLClient{
		logger: log.NoopLogger,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(client)
	}
	client.setDefaults()

	client.httpExecutor = NewHTTPExecutor(client.httpClient, client.logger)
	client.wsExecutor = NewWebSocketExecutor(client.dialer, client.logger)
	client.wsExecutor.strictAck = client.strictAck
	client.wsExecutor.ackTimeout = client.ackTimeout
	return client
}

func (client *GraphQLClient) setDefaults() {
	if client.logger == nil {
		client.logger = log.NoopLogger
	}
	if client.sleep == nil {
		client.sleep = sleepContext
	}
	if client.tracer == nil {
		client.tracer = defaultTracer()
	}
}

// Execute runs req against its endpoint under the given reconnect policy.
// An endpoint with an unsupported scheme fails immediately; every other
// failure is logged and, if the policy allows, retried.
func (client *GraphQLClient) Execute(ctx context.Context, req *Request, sink Sink, policy ReconnectPolicy) error {
	transport, err := ClassifyEndpoint(req.Endpoint)
	if err != nil {
		return err
	}
	return client.newReconnector(client.executorFor(transport), transport, policy).Run(ctx, req, sink)
}
