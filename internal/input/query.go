package input

import (
	"errors"
	"fmt"
	"os"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

var (
	ErrInvalidQuery      = errors.New("invalid query")
	ErrUnknownOperation  = errors.New("unknown operation")
	ErrAmbiguousDocument = errors.New("operation name required")
)

// Operation is an operation definition found in a query document.
type Operation struct {
	Name string
	Type ast.Operation
}

// LoadQuery reads the query document at path.
func LoadQuery(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read query: %w", err)
	}
	return string(data), nil
}

// ParseOperations parses a query document and lists its operations.
func ParseOperations(query string) ([]Operation, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "query", Input: query})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if len(doc.Operations) == 0 {
		return nil, fmt.Errorf("%w: document contains no operation", ErrInvalidQuery)
	}
	ops := make([]Operation, 0, len(doc.Operations))
	for _, op := range doc.Operations {
		ops = append(ops, Operation{Name: op.Name, Type: op.Operation})
	}
	return ops, nil
}

// SelectOperation returns the operation a server would run for name.
// An empty name is only valid when the document holds a single operation.
func SelectOperation(ops []Operation, name string) (Operation, error) {
	if name == "" {
		if len(ops) != 1 {
			return Operation{}, fmt.Errorf("%w: document contains %d operations", ErrAmbiguousDocument, len(ops))
		}
		return ops[0], nil
	}
	for _, op := range ops {
		if op.Name == name {
			return op, nil
		}
	}
	return Operation{}, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
}
