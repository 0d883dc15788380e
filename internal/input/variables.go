package input

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Variable is a single variable override given on the command line.
type Variable struct {
	Name  string
	Value interface{}
}

// LoadVariables reads the variables file at path, if any, and applies the
// overrides on top of it. Later overrides win over earlier ones and over the
// file. Files ending in .yaml or .yml are read as YAML, anything else as JSON.
func LoadVariables(path string, overrides []Variable) (map[string]interface{}, error) {
	variables := map[string]interface{}{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read variables: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &variables)
		default:
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.UseNumber()
			err = dec.Decode(&variables)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse variables from %s: %w", path, err)
		}
		if variables == nil {
			return nil, fmt.Errorf("variables file %s must contain an object", path)
		}
	}
	MergeVariables(variables, overrides)
	return variables, nil
}

// MergeVariables sets every override on variables, in order.
func MergeVariables(variables map[string]interface{}, overrides []Variable) {
	for _, v := range overrides {
		variables[v.Name] = v.Value
	}
}

// ParseVariables parses every "name=value" pair.
func ParseVariables(pairs []string) ([]Variable, error) {
	variables := make([]Variable, 0, len(pairs))
	for _, pair := range pairs {
		v, err := ParseVariable(pair)
		if err != nil {
			return nil, err
		}
		variables = append(variables, v)
	}
	return variables, nil
}

// ParseVariable parses a "name=value" pair into a JSON value.
//
// An absent or empty value is null. true and false are booleans, a value in
// double quotes is the string between them, integers and finite floats are
// numbers, values in brackets or braces are parsed as JSON. Everything else
// is taken as a plain string.
func ParseVariable(s string) (Variable, error) {
	name, raw, found := strings.Cut(s, "=")
	if !found {
		return Variable{Name: name}, nil
	}
	value, err := coerceValue(raw)
	if err != nil {
		return Variable{}, fmt.Errorf("invalid value for variable %q: %w", name, err)
	}
	return Variable{Name: name, Value: value}, nil
}

func coerceValue(raw string) (interface{}, error) {
	switch {
	case raw == "":
		return nil, nil
	case raw == "true":
		return true, nil
	case raw == "false":
		return false, nil
	case len(raw) >= 2 && strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`):
		return raw[1 : len(raw)-1], nil
	}

	if i, ok := new(big.Int).SetString(raw, 10); ok {
		return json.Number(i.String()), nil
	}

	if !strings.ContainsAny(raw, "xX_") {
		f, err := strconv.ParseFloat(raw, 64)
		switch {
		case err == nil && !math.IsInf(f, 0) && !math.IsNaN(f):
			return json.Number(strconv.FormatFloat(f, 'g', -1, 64)), nil
		case err == nil, isRangeError(err):
			return nil, fmt.Errorf("%s is not a finite number", raw)
		}
	}

	if (strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]")) ||
		(strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}")) {
		if !json.Valid([]byte(raw)) {
			return nil, fmt.Errorf("%s is not valid JSON", raw)
		}
		var value interface{}
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		return value, nil
	}

	return raw, nil
}

func isRangeError(err error) bool {
	numErr, ok := err.(*strconv.NumError)
	return ok && numErr.Err == strconv.ErrRange
}
