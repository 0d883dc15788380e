package gqlexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type subscribeFrame struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload struct {
		OperationName *string                `json:"operationName"`
		Query         string                 `json:"query"`
		Variables     map[string]interface{} `json:"variables"`
	} `json:"payload"`
}

func setupWebSocketTestServer(t *testing.T, handle func(r *http.Request, conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{Subprotocols: []string{"graphql-transport-ws"}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(r, conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// acceptSubscription acknowledges the connection and reads the subscribe
// message. It returns false if the client went away.
func acceptSubscription(conn *websocket.Conn) (subscribeFrame, bool) {
	var frame subscribeFrame
	_, data, err := conn.ReadMessage()
	if err != nil || !strings.Contains(string(data), `"connection_init"`) {
		return frame, false
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connection_ack"}`)); err != nil {
		return frame, false
	}
	_, data, err = conn.ReadMessage()
	if err != nil || json.Unmarshal(data, &frame) != nil {
		return frame, false
	}
	return frame, true
}

func writeText(conn *websocket.Conn, format string, args ...interface{}) {
	conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(format, args...)))
}

// drain blocks until the client closes the connection.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestWebSocketSubscription(t *testing.T) {
	frames := make(chan subscribeFrame, 1)
	endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
		frame, ok := acceptSubscription(conn)
		if !ok {
			return
		}
		frames <- frame
		writeText(conn, `{"id":%q,"type":"next","payload":{"data":{"n":1}}}`, frame.ID)
		writeText(conn, `{"id":%q,"type":"next","payload":{"data":{"n":2}}}`, frame.ID)
		writeText(conn, `{"id":%q,"type":"complete"}`, frame.ID)
		drain(conn)
	})

	sink := &recordingSink{}
	err := NewWebSocketExecutor(nil, nil).Execute(context.Background(), &Request{
		Endpoint:  endpoint,
		Query:     "subscription { n }",
		Variables: map[string]interface{}{"since": 10},
	}, sink)
	require.NoError(t, err)

	frame := <-frames
	assert.Equal(t, "subscribe", frame.Type)
	assert.NotEmpty(t, frame.ID)
	assert.Nil(t, frame.Payload.OperationName)
	assert.Equal(t, "subscription { n }", frame.Payload.Query)
	assert.Equal(t, map[string]interface{}{"since": float64(10)}, frame.Payload.Variables)

	var got []interface{}
	for _, response := range sink.responses {
		got = append(got, response.Data)
	}
	want := []interface{}{
		map[string]interface{}{"n": json.Number("1")},
		map[string]interface{}{"n": json.Number("2")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("responses mismatch (-want +got):\n%s", diff)
	}
}

func TestWebSocketHandshakeHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
		headers <- r.Header.Clone()
		frame, ok := acceptSubscription(conn)
		if !ok {
			return
		}
		writeText(conn, `{"id":%q,"type":"complete"}`, frame.ID)
		drain(conn)
	})

	err := NewWebSocketExecutor(nil, nil).Execute(context.Background(), &Request{
		Endpoint: endpoint,
		Headers: []Header{
			{Name: "Authorization", Value: "Bearer token"},
			{Name: "X-Tenant", Value: "a"},
			{Name: "X-Tenant", Value: "b"},
		},
		Query: "subscription { n }",
	}, &recordingSink{})
	require.NoError(t, err)

	got := <-headers
	assert.Equal(t, "graphql-transport-ws", got.Get("Sec-WebSocket-Protocol"))
	assert.Contains(t, got.Get("Sec-WebSocket-Extensions"), "permessage-deflate")
	assert.Equal(t, "Bearer token", got.Get("Authorization"))
	assert.Equal(t, []string{"a", "b"}, got.Values("X-Tenant"))
}

func TestWebSocketConnectionInitMessage(t *testing.T) {
	inits := make(chan string, 1)
	endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		inits <- string(data)
		writeText(conn, `{"type":"connection_ack"}`)
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		writeText(conn, `{"type":"complete"}`)
		drain(conn)
	})

	err := NewWebSocketExecutor(nil, nil).Execute(context.Background(), &Request{Endpoint: endpoint}, &recordingSink{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connection_init","payload":{}}`, <-inits)
}

func TestWebSocketReconnectUsesFreshSubscriptionID(t *testing.T) {
	var connections atomic.Int32
	ids := make(chan string, 2)
	endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
		n := connections.Add(1)
		frame, ok := acceptSubscription(conn)
		if !ok {
			return
		}
		ids <- frame.ID
		if n == 1 {
			// drop the connection without a close frame
			return
		}
		writeText(conn, `{"id":%q,"type":"next","payload":{"data":{"ok":true}}}`, frame.ID)
		writeText(conn, `{"id":%q,"type":"complete"}`, frame.ID)
		drain(conn)
	})

	logger, logs := newObservedLogger()
	var sleeps []time.Duration
	client := NewClient(WithLogger(logger), WithSleep(func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}))
	sink := &recordingSink{}

	err := client.Execute(context.Background(), &Request{Endpoint: endpoint, Query: "subscription { ok }"}, sink, ReconnectEvery(50*time.Millisecond))
	require.NoError(t, err)

	first, second := <-ids, <-ids
	assert.NotEmpty(t, first)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
	assert.EqualValues(t, 2, connections.Load())
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, sleeps)
	assert.Len(t, sink.responses, 1)
	assert.Equal(t, 1, logs.FilterMessage("attempt failed").Len())
}

func TestWebSocketAck(t *testing.T) {
	t.Run("closed before ack", func(t *testing.T) {
		endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
			conn.ReadMessage()
		})
		err := NewWebSocketExecutor(nil, nil).Execute(context.Background(), &Request{Endpoint: endpoint}, &recordingSink{})
		assert.ErrorIs(t, err, ErrConnectionInit)
		assert.True(t, IsRetryable(err))
	})

	t.Run("any first message is accepted by default", func(t *testing.T) {
		endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			writeText(conn, `{"type":"ping"}`)
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			writeText(conn, `{"type":"complete"}`)
			drain(conn)
		})
		err := NewWebSocketExecutor(nil, nil).Execute(context.Background(), &Request{Endpoint: endpoint}, &recordingSink{})
		assert.NoError(t, err)
	})

	t.Run("strict ack rejects other messages", func(t *testing.T) {
		endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			writeText(conn, `{"type":"ping"}`)
			drain(conn)
		})
		client := NewClient(WithStrictAck(true))
		err := client.wsExecutor.Execute(context.Background(), &Request{Endpoint: endpoint}, &recordingSink{})
		assert.ErrorIs(t, err, ErrConnectionInit)
	})

	t.Run("ack timeout", func(t *testing.T) {
		endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
			drain(conn)
		})
		client := NewClient(WithAckTimeout(50 * time.Millisecond))
		err := client.wsExecutor.Execute(context.Background(), &Request{Endpoint: endpoint}, &recordingSink{})
		assert.ErrorIs(t, err, ErrConnectionInit)
	})
}

func TestWebSocketStreaming(t *testing.T) {
	t.Run("control frames and invalid text are skipped", func(t *testing.T) {
		pongs := make(chan string, 1)
		endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
			frame, ok := acceptSubscription(conn)
			if !ok {
				return
			}
			conn.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0xfe, 0xfd})
			writeText(conn, `{"type":"ping"}`)
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			pongs <- string(data)
			writeText(conn, `{"id":%q,"type":"error"}`, frame.ID)
			writeText(conn, `{"id":%q,"type":"next","payload":{"data":{"n":1}}}`, frame.ID)
			writeText(conn, `{"id":%q,"type":"complete"}`, frame.ID)
			drain(conn)
		})

		sink := &recordingSink{}
		err := NewWebSocketExecutor(nil, nil).Execute(context.Background(), &Request{Endpoint: endpoint}, sink)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"pong"}`, <-pongs)
		assert.Len(t, sink.responses, 1)
	})

	t.Run("error payload reaches the sink and ends the attempt", func(t *testing.T) {
		endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
			frame, ok := acceptSubscription(conn)
			if !ok {
				return
			}
			writeText(conn, `{"id":%q,"type":"error","payload":[{"message":"Cannot query field"}]}`, frame.ID)
			drain(conn)
		})

		sink := &recordingSink{}
		done := make(chan error, 1)
		go func() {
			done <- NewWebSocketExecutor(nil, nil).Execute(context.Background(), &Request{Endpoint: endpoint}, sink)
		}()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrConnection)
			assert.True(t, IsRetryable(err))
		case <-time.After(5 * time.Second):
			t.Fatal("attempt did not end after the error message")
		}
		require.Len(t, sink.responses, 1)
		assert.Equal(t, "Cannot query field", sink.responses[0].Errors[0]["message"])
	})

	t.Run("normal closure ends the attempt", func(t *testing.T) {
		endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
			frame, ok := acceptSubscription(conn)
			if !ok {
				return
			}
			writeText(conn, `{"id":%q,"type":"next","payload":{"data":{}}}`, frame.ID)
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			drain(conn)
		})

		sink := &recordingSink{}
		err := NewWebSocketExecutor(nil, nil).Execute(context.Background(), &Request{Endpoint: endpoint}, sink)
		require.NoError(t, err)
		assert.Len(t, sink.responses, 1)
	})

	t.Run("abnormal closure fails the attempt", func(t *testing.T) {
		endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
			acceptSubscription(conn)
		})
		err := NewWebSocketExecutor(nil, nil).Execute(context.Background(), &Request{Endpoint: endpoint}, &recordingSink{})
		assert.ErrorIs(t, err, ErrConnection)
	})

	t.Run("malformed message fails the attempt", func(t *testing.T) {
		endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
			if _, ok := acceptSubscription(conn); !ok {
				return
			}
			writeText(conn, `{"type":`)
			drain(conn)
		})
		err := NewWebSocketExecutor(nil, nil).Execute(context.Background(), &Request{Endpoint: endpoint}, &recordingSink{})
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("sink error aborts the attempt", func(t *testing.T) {
		endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
			frame, ok := acceptSubscription(conn)
			if !ok {
				return
			}
			writeText(conn, `{"id":%q,"type":"next","payload":{"data":{"n":1}}}`, frame.ID)
			writeText(conn, `{"id":%q,"type":"next","payload":{"data":{"n":2}}}`, frame.ID)
			drain(conn)
		})

		rejected := errors.New("rejected")
		sink := &recordingSink{err: rejected}
		err := NewWebSocketExecutor(nil, nil).Execute(context.Background(), &Request{Endpoint: endpoint}, sink)
		assert.ErrorIs(t, err, ErrSink)
		assert.ErrorIs(t, err, rejected)
		assert.Len(t, sink.responses, 1)
	})
}

func TestWebSocketDroppedConnectionLogsOnce(t *testing.T) {
	endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
		acceptSubscription(conn)
	})

	logger, logs := newObservedLogger()
	client := NewClient(WithLogger(logger))
	err := client.Execute(context.Background(), &Request{Endpoint: endpoint}, &recordingSink{}, NoReconnect())
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("attempt failed").Len())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestWebSocketDialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no websockets here", http.StatusForbidden)
	}))
	defer server.Close()

	err := NewWebSocketExecutor(nil, nil).Execute(context.Background(), &Request{Endpoint: "ws" + strings.TrimPrefix(server.URL, "http")}, &recordingSink{})
	assert.ErrorIs(t, err, ErrConnection)
	assert.Contains(t, err.Error(), "403")
}

func TestWebSocketCancellation(t *testing.T) {
	subscribed := make(chan struct{})
	endpoint := setupWebSocketTestServer(t, func(r *http.Request, conn *websocket.Conn) {
		if _, ok := acceptSubscription(conn); !ok {
			return
		}
		close(subscribed)
		drain(conn)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewWebSocketExecutor(nil, nil).Execute(ctx, &Request{Endpoint: endpoint}, &recordingSink{})
	}()

	<-subscribed
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not stop after cancellation")
	}
}
