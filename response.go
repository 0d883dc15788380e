package gqlexec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

// GraphQLResponse is the response envelope of a GraphQL server.
// Errors and Extensions are never nil after decoding and are left out of
// the encoded form when empty.
type GraphQLResponse struct {
	Data       interface{}              `json:"data"`
	Extensions map[string]interface{}   `json:"extensions,omitempty"`
	Errors     []map[string]interface{} `json:"errors,omitempty"`
}

func (r *GraphQLResponse) UnmarshalJSON(data []byte) error {
	type plain GraphQLResponse
	var p plain
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	if p.Extensions == nil {
		p.Extensions = map[string]interface{}{}
	}
	if p.Errors == nil {
		p.Errors = []map[string]interface{}{}
	}
	*r = GraphQLResponse(p)
	return nil
}

// ParseResponse decodes a GraphQL response object.
func ParseResponse(data []byte) (*GraphQLResponse, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, wrapError(nil, ErrMalformedResponse, "invalid JSON")
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, wrapError(nil, ErrMalformedResponse, "response is not a JSON object")
	}
	var response GraphQLResponse
	if err := json.Unmarshal(trimmed, &response); err != nil {
		return nil, wrapError(err, ErrMalformedResponse, "failed to decode response")
	}
	return &response, nil
}

// WSResponse is a message received over a graphql-transport-ws connection.
// Payload is nil for control messages.
type WSResponse struct {
	Type    string           `json:"type"`
	ID      string           `json:"id,omitempty"`
	Payload *GraphQLResponse `json:"payload,omitempty"`
}

// IsComplete reports whether the server finished the operation.
func (r *WSResponse) IsComplete() bool {
	return r.Type == messageTypeComplete
}

// ParseWSResponse decodes a graphql-transport-ws message.
//
// Payloads of next (and legacy data) messages become the response payload.
// An error message carries a list of GraphQL errors, which is turned into a
// response holding only those errors. It is the last message of its
// subscription. Payloads of control messages are
// dropped so they stay on the control path.
func ParseWSResponse(data []byte) (*WSResponse, error) {
	if !json.Valid(data) {
		return nil, wrapError(nil, ErrMalformedResponse, "invalid JSON message")
	}
	messageType, err := jsonparser.GetString(data, "type")
	if err != nil {
		return nil, wrapError(err, ErrMalformedResponse, "message without type")
	}
	var id string
	idValue, idType, _, err := jsonparser.Get(data, "id")
	switch {
	case idType == jsonparser.String:
		if id, err = jsonparser.ParseString(idValue); err != nil {
			return nil, wrapError(err, ErrMalformedResponse, "invalid message id")
		}
	case idType == jsonparser.NotExist, idType == jsonparser.Null:
	default:
		return nil, wrapError(err, ErrMalformedResponse, "invalid message id")
	}

	response := &WSResponse{Type: messageType, ID: id}
	if isControlMessage(messageType) {
		return response, nil
	}

	value, valueType, _, err := jsonparser.Get(data, "payload")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return nil, wrapError(err, ErrMalformedResponse, "invalid payload")
	}

	switch valueType {
	case jsonparser.NotExist, jsonparser.Null:
	case jsonparser.Object:
		if messageType == messageTypeError {
			var gqlErr map[string]interface{}
			if err := unmarshalNumbers(value, &gqlErr); err != nil {
				return nil, wrapError(err, ErrMalformedResponse, "invalid error payload")
			}
			response.Payload = errorsResponse([]map[string]interface{}{gqlErr})
			break
		}
		payload, err := ParseResponse(value)
		if err != nil {
			return nil, err
		}
		response.Payload = payload
	case jsonparser.Array:
		if messageType != messageTypeError {
			return nil, wrapError(nil, ErrMalformedResponse, fmt.Sprintf("unexpected array payload in %q message", messageType))
		}
		var gqlErrs []map[string]interface{}
		if err := unmarshalNumbers(value, &gqlErrs); err != nil {
			return nil, wrapError(err, ErrMalformedResponse, "invalid error payload")
		}
		response.Payload = errorsResponse(gqlErrs)
	default:
		return nil, wrapError(nil, ErrMalformedResponse, fmt.Sprintf("unexpected %s payload in %q message", valueType, messageType))
	}

	return response, nil
}

func errorsResponse(gqlErrs []map[string]interface{}) *GraphQLResponse {
	if gqlErrs == nil {
		gqlErrs = []map[string]interface{}{}
	}
	return &GraphQLResponse{
		Extensions: map[string]interface{}{},
		Errors:     gqlErrs,
	}
}

func unmarshalNumbers(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
