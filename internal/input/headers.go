package input

import (
	"fmt"
	"strings"

	"github.com/BenBurnett/gqlexec"
	"golang.org/x/net/http/httpguts"
)

// ParseHeader parses a "name=value" pair. A missing "=" yields an empty value.
func ParseHeader(s string) (gqlexec.Header, error) {
	name, value, _ := strings.Cut(s, "=")
	if !httpguts.ValidHeaderFieldName(name) {
		return gqlexec.Header{}, fmt.Errorf("invalid header name %q", name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return gqlexec.Header{}, fmt.Errorf("invalid value for header %q", name)
	}
	return gqlexec.Header{Name: name, Value: value}, nil
}

// ParseHeaders parses every pair, keeping duplicates in order.
func ParseHeaders(pairs []string) ([]gqlexec.Header, error) {
	headers := make([]gqlexec.Header, 0, len(pairs))
	for _, pair := range pairs {
		header, err := ParseHeader(pair)
		if err != nil {
			return nil, err
		}
		headers = append(headers, header)
	}
	return headers, nil
}
