package job

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/arloliu/imgpool/types"
)

// Request is one unit of image generation work.
type Request struct {
	Seed     int64  `json:"seed"`
	Prompt   string `json:"prompt"`
	NumSteps int    `json:"num_steps"`
	Height   int    `json:"height"`
	Width    int    `json:"width"`
}

// Limits bound the values a request may carry. A zero limit disables that bound.
type Limits struct {
	// MaxPromptLength is the maximum prompt length in runes.
	MaxPromptLength int `yaml:"maxPromptLength" env:"IMGPOOL_MAX_PROMPT_LENGTH"`

	// MaxSteps is the maximum number of inference steps.
	MaxSteps int `yaml:"maxSteps" env:"IMGPOOL_MAX_STEPS"`

	// MaxDimension is the maximum height and width in pixels.
	MaxDimension int `yaml:"maxDimension" env:"IMGPOOL_MAX_DIMENSION"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxPromptLength: 1000,
		MaxSteps:        150,
		MaxDimension:    2048,
	}
}

// Params converts the request into backend parameters.
func (r Request) Params() types.GenerateParams {
	return types.GenerateParams{
		Seed:     r.Seed,
		Prompt:   r.Prompt,
		NumSteps: r.NumSteps,
		Height:   r.Height,
		Width:    r.Width,
	}
}

// Marshal encodes the request in its bus form.
func (r Request) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Validate checks value ranges. All violations are reported, joined.
func (r Request) Validate(limits Limits) error {
	return r.validate(BusFields, limits)
}

func (r Request) validate(names FieldNames, limits Limits) error {
	var errs []error

	prompt := strings.TrimSpace(r.Prompt)
	switch {
	case prompt == "":
		errs = append(errs, invalid(names.Prompt, "must not be empty"))
	case strings.ContainsRune(r.Prompt, 0):
		errs = append(errs, invalid(names.Prompt, "must not contain NUL bytes"))
	case limits.MaxPromptLength > 0 && utf8.RuneCountInString(r.Prompt) > limits.MaxPromptLength:
		errs = append(errs, invalid(names.Prompt, fmt.Sprintf("must be at most %d characters", limits.MaxPromptLength)))
	}

	errs = append(errs, checkRange(names.NumSteps, r.NumSteps, limits.MaxSteps))
	errs = append(errs, checkRange(names.Height, r.Height, limits.MaxDimension))
	errs = append(errs, checkRange(names.Width, r.Width, limits.MaxDimension))

	return errors.Join(errs...)
}

func checkRange(field string, v, maxValue int) error {
	if v <= 0 {
		return invalid(field, "must be a positive integer")
	}
	if maxValue > 0 && v > maxValue {
		return invalid(field, fmt.Sprintf("must be at most %d", maxValue))
	}

	return nil
}

// Decode parses a bus payload into a validated Request.
//
// The payload must be a single JSON object. Integer fields accept JSON numbers
// with no fractional part and strings holding a base-10 integer.
//
// Parameters:
//   - data: Raw message body
//   - limits: Value bounds to enforce
//
// Returns:
//   - Request: The validated request
//   - error: ErrDecode, or field errors unwrapping to ErrMissingField / ErrInvalidField
func Decode(data []byte, limits Limits) (Request, error) {
	fields, err := DecodeFields(data)
	if err != nil {
		return Request{}, err
	}

	return FromFields(fields, BusFields, limits)
}

// DecodeFields parses a JSON object into a field map, keeping numbers as json.Number.
func DecodeFields(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object", ErrDecode)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrDecode)
	}

	return fields, nil
}

// FromFields builds a validated Request from an untyped field map.
//
// Every required field named by names must be present. All problems are reported
// together, joined, in field order.
//
// Parameters:
//   - fields: Decoded values keyed by transport field name
//   - names: Transport field naming (BusFields or HTTPFields)
//   - limits: Value bounds to enforce
//
// Returns:
//   - Request: The validated request
//   - error: Joined field errors, nil when the request is valid
func FromFields(fields map[string]any, names FieldNames, limits Limits) (Request, error) {
	var (
		req  Request
		errs []error
	)

	if v, err := int64Field(fields, names.Seed); err != nil {
		errs = append(errs, err)
	} else {
		req.Seed = v
	}

	if raw, ok := fields[names.Prompt]; !ok {
		errs = append(errs, missing(names.Prompt))
	} else if s, ok := raw.(string); !ok {
		errs = append(errs, invalid(names.Prompt, "must be a string"))
	} else {
		req.Prompt = s
	}

	for _, f := range []struct {
		name string
		dst  *int
	}{
		{names.NumSteps, &req.NumSteps},
		{names.Height, &req.Height},
		{names.Width, &req.Width},
	} {
		v, err := int64Field(fields, f.name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if v > math.MaxInt32 || v < math.MinInt32 {
			errs = append(errs, invalid(f.name, "is out of range"))
			continue
		}
		*f.dst = int(v)
	}

	if len(errs) > 0 {
		return Request{}, errors.Join(errs...)
	}

	if err := req.validate(names, limits); err != nil {
		return Request{}, err
	}

	return req, nil
}

func int64Field(fields map[string]any, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, missing(name)
	}

	v, ok := coerceInt(raw)
	if !ok {
		return 0, invalid(name, "must be an integer")
	}

	return v, nil
}

// coerceInt converts numbers without a fractional part and base-10 integer strings.
func coerceInt(raw any) (int64, bool) {
	switch v := raw.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}

		return floatToInt(f)
	case float64:
		return floatToInt(v)
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}

		return n, true
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}

	return int64(f), true
}
