package gqlexec

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/jensneuse/abstractlogger"
)

type wsState int

const (
	stateConnecting wsState = iota
	stateAwaitingAck
	stateSubscribing
	stateStreaming
	stateDone
)

func (s wsState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAwaitingAck:
		return "awaiting_ack"
	case stateSubscribing:
		return "subscribing"
	case stateStreaming:
		return "streaming"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// WebSocketExecutor runs an operation as one graphql-transport-ws
// subscription. Each Execute call opens its own connection and closes it
// before returning.
type WebSocketExecutor struct {
	dialer     websocket.Dialer
	logger     log.Logger
	strictAck  bool
	ackTimeout time.Duration
	newID      func() string
}

func NewWebSocketExecutor(dialer *websocket.Dialer, logger log.Logger) *WebSocketExecutor {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if logger == nil {
		logger = log.NoopLogger
	}
	d := *dialer
	d.Subprotocols = []string{graphqlTransportWSProtocol}
	d.EnableCompression = true
	return &WebSocketExecutor{
		dialer: d,
		logger: logger,
		newID:  uuid.NewString,
	}
}

type wsAttempt struct {
	*WebSocketExecutor
	state wsState
}

func (a *wsAttempt) transition(next wsState) {
	a.logger.Debug("websocket state changed",
		log.String("from", a.state.String()),
		log.String("to", next.String()),
	)
	a.state = next
}

// Execute connects, waits for the server to acknowledge the connection,
// subscribes with a fresh id and streams every payload to the sink until the
// server completes the operation or closes the connection normally.
func (e *WebSocketExecutor) Execute(ctx context.Context, req *Request, sink Sink) error {
	a := &wsAttempt{WebSocketExecutor: e, state: stateConnecting}

	conn, err := a.dial(ctx, req)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	a.transition(stateAwaitingAck)
	if err := a.awaitAck(ctx, conn); err != nil {
		return err
	}

	a.transition(stateSubscribing)
	subID := a.newID()
	subscribe, err := subscribeMessage(subID, req)
	if err != nil {
		return fmt.Errorf("failed to marshal subscribe message: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, subscribe); err != nil {
		return a.connectionError(ctx, err, "failed to send subscribe message")
	}

	a.transition(stateStreaming)
	if err := a.stream(ctx, conn, subID, sink); err != nil {
		return err
	}

	a.transition(stateDone)
	return nil
}

func (a *wsAttempt) dial(ctx context.Context, req *Request) (*websocket.Conn, error) {
	header := http.Header{}
	for _, h := range req.Headers {
		header.Add(h.Name, h.Value)
	}

	a.logger.Debug("connecting to websocket endpoint", log.String("endpoint", req.Endpoint))
	conn, resp, err := a.dialer.DialContext(ctx, req.Endpoint, header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			a.logger.Debug("websocket handshake failed",
				log.Int("status", resp.StatusCode),
				log.ByteString("body", body),
			)
			return nil, wrapError(err, ErrConnection, fmt.Sprintf("handshake failed with status %s", resp.Status))
		}
		return nil, wrapError(err, ErrConnection, "failed to dial websocket")
	}

	if protocol := conn.Subprotocol(); protocol != graphqlTransportWSProtocol {
		a.logger.Warn("server did not select the graphql-transport-ws subprotocol",
			log.String("subprotocol", protocol),
		)
	}
	return conn, nil
}

func (a *wsAttempt) awaitAck(ctx context.Context, conn *websocket.Conn) error {
	initMessage, err := connectionInitMessage()
	if err != nil {
		return fmt.Errorf("failed to marshal connection_init message: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, initMessage); err != nil {
		return a.connectionError(ctx, err, "failed to send connection_init message")
	}

	if a.ackTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(a.ackTimeout))
		defer conn.SetReadDeadline(time.Time{})
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return wrapError(err, ErrConnectionInit, "no message received after connection_init")
	}

	if !a.strictAck {
		a.logger.Debug("connection acknowledged", log.ByteString("message", data))
		return nil
	}
	ack, err := ParseWSResponse(data)
	if err != nil {
		return wrapError(err, ErrConnectionInit, "invalid acknowledgment")
	}
	if ack.Type != messageTypeConnectionAck {
		return wrapError(nil, ErrConnectionInit, fmt.Sprintf("expected %s, got %q", messageTypeConnectionAck, ack.Type))
	}
	a.logger.Debug("connection acknowledged")
	return nil
}

func (a *wsAttempt) stream(ctx context.Context, conn *websocket.Conn, subID string, sink Sink) error {
	for {
		frameType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				a.logger.Debug("websocket closed by server", log.String("id", subID))
				return nil
			}
			a.logger.Debug("websocket receive failed", log.String("id", subID), log.Error(err))
			return wrapError(err, ErrConnection, "websocket receive failed")
		}

		if !utf8.Valid(data) {
			a.logger.Warn("invalid message received from websocket", log.Int("frameType", frameType))
			continue
		}

		response, err := ParseWSResponse(data)
		if err != nil {
			return err
		}

		if response.Payload != nil {
			if err := sink.Accept(response.Payload); err != nil {
				return wrapError(err, ErrSink, "response rejected")
			}
			if response.Type == messageTypeError {
				// the server sends no complete after an error
				return wrapError(nil, ErrConnection, "subscription error")
			}
			continue
		}

		a.logger.Debug("control message received",
			log.String("type", response.Type),
			log.String("id", response.ID),
		)

		switch response.Type {
		case messageTypeComplete:
			return nil
		case messageTypePing:
			pong, err := pongMessage()
			if err != nil {
				return fmt.Errorf("failed to marshal pong message: %w", err)
			}
			if err := conn.WriteMessage(websocket.TextMessage, pong); err != nil {
				return a.connectionError(ctx, err, "failed to send pong message")
			}
		}
	}
}

func (a *wsAttempt) connectionError(ctx context.Context, err error, message string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return wrapError(err, ErrConnection, message)
}
