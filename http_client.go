package gqlexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	log "github.com/jensneuse/abstractlogger"
)

// HTTPExecutor runs an operation as a single POST request.
type HTTPExecutor struct {
	client *http.Client
	logger log.Logger
}

func NewHTTPExecutor(client *http.Client, logger log.Logger) *HTTPExecutor {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = log.NoopLogger
	}
	return &HTTPExecutor{
		client: client,
		logger: logger,
	}
}

// Execute posts the operation and hands the decoded response to the sink
// exactly once. The status code is not inspected; the body decides.
func (e *HTTPExecutor) Execute(ctx context.Context, req *Request, sink Sink) error {
	requestBody, err := json.Marshal(req.payload())
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return wrapError(err, ErrConnection, "failed to create request")
	}
	for _, header := range req.Headers {
		httpReq.Header.Add(header.Name, header.Value)
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return wrapError(err, ErrConnection, "failed to execute request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return wrapError(err, ErrConnection, "failed to read response body")
	}

	e.logger.Debug("http response received",
		log.String("endpoint", req.Endpoint),
		log.Int("status", resp.StatusCode),
	)

	response, err := ParseResponse(body)
	if err != nil {
		return fmt.Errorf("%w (HTTP %s)", err, resp.Status)
	}

	if err := sink.Accept(response); err != nil {
		return wrapError(err, ErrSink, "response rejected")
	}

	return nil
}
