package gqlexec

// Header is a single HTTP header pair. Several headers may share a name.
type Header struct {
	Name  string
	Value string
}

// Request describes one GraphQL operation against a remote endpoint.
// It is not modified by the client; every attempt works on a Clone.
type Request struct {
	Endpoint      string
	Headers       []Header
	Query         string
	OperationName *string
	Variables     map[string]interface{}
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	clone := &Request{
		Endpoint: r.Endpoint,
		Query:    r.Query,
	}
	if r.Headers != nil {
		clone.Headers = make([]Header, len(r.Headers))
		copy(clone.Headers, r.Headers)
	}
	if r.OperationName != nil {
		name := *r.OperationName
		clone.OperationName = &name
	}
	if r.Variables != nil {
		clone.Variables = copyValue(r.Variables).(map[string]interface{})
	}
	return clone
}

func (r *Request) payload() operationPayload {
	variables := r.Variables
	if variables == nil {
		variables = map[string]interface{}{}
	}
	return operationPayload{
		OperationName: r.OperationName,
		Query:         r.Query,
		Variables:     variables,
	}
}

func (r *Request) operationName() string {
	if r.OperationName == nil {
		return ""
	}
	return *r.OperationName
}

// operationPayload is the body of an HTTP request and of a subscribe message.
type operationPayload struct {
	OperationName *string                `json:"operationName"`
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
}

func copyValue(v interface{}) interface{} {
	switch value := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(value))
		for k, item := range value {
			m[k] = copyValue(item)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(value))
		for i, item := range value {
			s[i] = copyValue(item)
		}
		return s
	default:
		return v
	}
}

// Sink consumes every response the client receives. Accept is called
// sequentially, in arrival order, and never concurrently.
type Sink interface {
	Accept(response *GraphQLResponse) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(response *GraphQLResponse) error

func (f SinkFunc) Accept(response *GraphQLResponse) error {
	return f(response)
}
