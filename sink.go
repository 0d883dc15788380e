package gqlexec

import (
	"encoding/json"
	"io"
)

// JSONSink writes every response as indented JSON.
type JSONSink struct {
	w io.Writer
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w}
}

func (s *JSONSink) Accept(response *GraphQLResponse) error {
	out, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	_, err = s.w.Write(out)
	return err
}
