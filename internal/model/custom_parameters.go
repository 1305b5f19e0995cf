package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MaxCustomParameterNameLength is the maximum byte length of a custom
// parameter name (spec.md §3, §6).
const MaxCustomParameterNameLength = 80

// ReservedEnvVars are environment variable names a CustomParameters map may
// never use: they are set by the JobRunner itself (spec.md §3, §4.5, §6).
var ReservedEnvVars = map[string]struct{}{
	"EVOBENCH_LOG":    {},
	"BENCH_OUTPUT_LOG": {},
	"COMMIT_ID":       {},
	"COMMIT_TAGS":     {},
	"DATASET_DIR":     {},
}

// Sentinel errors for CustomParameters validation.
var (
	ErrEmptyParamName        = errors.New("custom parameter name is empty")
	ErrParamNameTooLong      = errors.New("custom parameter name too long")
	ErrParamNameHasEquals    = errors.New("custom parameter name contains '='")
	ErrParamNameHasNUL       = errors.New("custom parameter name contains NUL")
	ErrReservedParamName     = errors.New("custom parameter name is reserved")
	ErrUnknownParamName      = errors.New("custom parameter name not declared in target schema")
	ErrParamTypeMismatch     = errors.New("custom parameter value does not match declared type")
)

// ParamType is the syntactic type a target's schema assigns to one custom
// parameter name.
type ParamType int

// Supported ParamType values.
const (
	ParamTypeBool ParamType = iota
	ParamTypeNonZeroU32
	ParamTypeDirName
	ParamTypeFileName
	ParamTypeString
)

// ParamSchema maps declared custom-parameter names to their syntactic type,
// for one BenchmarkingCommand target.
type ParamSchema map[string]ParamType

// CustomParameters is a validated mapping from environment-variable name to
// string value. Iteration is always in key-sorted order (Keys, EnvPairs).
type CustomParameters struct {
	values map[string]string
}

// NewCustomParameters validates raw against the reserved-name set and, if
// schema is non-nil, against the per-target type schema, returning a
// CustomParameters on success.
func NewCustomParameters(raw map[string]string, schema ParamSchema) (CustomParameters, error) {
	values := make(map[string]string, len(raw))

	for name, value := range raw {
		err := validateParamName(name)
		if err != nil {
			return CustomParameters{}, err
		}

		if schema != nil {
			typ, ok := schema[name]
			if !ok {
				return CustomParameters{}, fmt.Errorf("%w: %q", ErrUnknownParamName, name)
			}

			err = validateParamType(value, typ)
			if err != nil {
				return CustomParameters{}, fmt.Errorf("%w: %q: %w", ErrParamTypeMismatch, name, err)
			}
		}

		values[name] = value
	}

	return CustomParameters{values: values}, nil
}

func validateParamName(name string) error {
	if name == "" {
		return ErrEmptyParamName
	}

	if len(name) > MaxCustomParameterNameLength {
		return fmt.Errorf("%w: %q (%d bytes)", ErrParamNameTooLong, name, len(name))
	}

	if strings.Contains(name, "=") {
		return fmt.Errorf("%w: %q", ErrParamNameHasEquals, name)
	}

	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrParamNameHasNUL, name)
	}

	if _, reserved := ReservedEnvVars[name]; reserved {
		return fmt.Errorf("%w: %q", ErrReservedParamName, name)
	}

	return nil
}

func validateParamType(value string, typ ParamType) error {
	switch typ {
	case ParamTypeBool:
		_, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("not a bool: %w", err)
		}
	case ParamTypeNonZeroU32:
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("not a u32: %w", err)
		}

		if n == 0 {
			return errors.New("must be nonzero")
		}
	case ParamTypeDirName, ParamTypeFileName:
		if value == "" || strings.ContainsAny(value, "/\x00") {
			return errors.New("not a valid path component")
		}
	case ParamTypeString:
		// Any value is acceptable.
	default:
		return fmt.Errorf("unknown param type %d", typ)
	}

	return nil
}

// Keys returns the parameter names in sorted order.
func (c CustomParameters) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Get returns the value for name and whether it was present.
func (c CustomParameters) Get(name string) (string, bool) {
	v, ok := c.values[name]

	return v, ok
}

// Len returns the number of parameters.
func (c CustomParameters) Len() int {
	return len(c.values)
}

// EnvPairs renders the parameters as "NAME=VALUE" strings in key-sorted order,
// suitable for appending to a subprocess's environment.
func (c CustomParameters) EnvPairs() []string {
	keys := c.Keys()
	pairs := make([]string, 0, len(keys))

	for _, k := range keys {
		pairs = append(pairs, k+"="+c.values[k])
	}

	return pairs
}

// MarshalJSON implements json.Marshaler.
func (c CustomParameters) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(c.values)
	if err != nil {
		return nil, fmt.Errorf("marshal custom parameters: %w", err)
	}

	return b, nil
}

// UnmarshalJSON implements json.Unmarshaler. It does not re-run schema
// validation: schema is only known to the caller holding the target
// definitions, so NewCustomParameters must be called explicitly to validate
// decoded values against a schema if that matters to the caller.
func (c *CustomParameters) UnmarshalJSON(data []byte) error {
	var values map[string]string

	err := json.Unmarshal(data, &values)
	if err != nil {
		return fmt.Errorf("unmarshal custom parameters: %w", err)
	}

	if values == nil {
		values = map[string]string{}
	}

	c.values = values

	return nil
}
