package gqlexec

import (
	"encoding/json"
)

// graphqlTransportWSProtocol is the WebSocket subprotocol spoken by the
// subscription executor.
const graphqlTransportWSProtocol = "graphql-transport-ws"

const (
	messageTypeConnectionInit = "connection_init"
	messageTypeConnectionAck  = "connection_ack"
	messageTypePing           = "ping"
	messageTypePong           = "pong"
	messageTypeSubscribe      = "subscribe"
	messageTypeNext           = "next"
	messageTypeError          = "error"
	messageTypeComplete       = "complete"

	// sent by servers speaking the legacy graphql-ws protocol
	messageTypeData         = "data"
	messageTypeKeepAlive    = "ka"
	messageTypeConnectionKA = "connection_keep_alive"
)

type message struct {
	ID      string      `json:"id,omitempty"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

func connectionInitMessage() ([]byte, error) {
	return json.Marshal(message{
		Type:    messageTypeConnectionInit,
		Payload: map[string]interface{}{},
	})
}

func subscribeMessage(id string, req *Request) ([]byte, error) {
	return json.Marshal(message{
		ID:      id,
		Type:    messageTypeSubscribe,
		Payload: req.payload(),
	})
}

func pongMessage() ([]byte, error) {
	return json.Marshal(message{Type: messageTypePong})
}

func isControlMessage(messageType string) bool {
	switch messageType {
	case messageTypeConnectionAck,
		messageTypePing,
		messageTypePong,
		messageTypeComplete,
		messageTypeKeepAlive,
		messageTypeConnectionKA:
		return true
	}
	return false
}
