package job

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	limits := DefaultLimits()

	t.Run("valid request", func(t *testing.T) {
		req, err := Decode([]byte(`{"seed":42,"prompt":"a red fox","num_steps":4,"height":512,"width":512}`), limits)
		require.NoError(t, err)
		require.Equal(t, Request{Seed: 42, Prompt: "a red fox", NumSteps: 4, Height: 512, Width: 512}, req)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := Decode([]byte(`{"seed":42,"prompt":"a red fox"}`), limits)
		require.ErrorIs(t, err, ErrMissingField)
		require.Contains(t, err.Error(), "num_steps")
		require.Contains(t, err.Error(), "height")
		require.Contains(t, err.Error(), "width")
	})

	t.Run("not json", func(t *testing.T) {
		_, err := Decode([]byte("not json at all"), limits)
		require.ErrorIs(t, err, ErrDecode)
	})

	t.Run("json but not an object", func(t *testing.T) {
		for _, payload := range []string{`[1,2]`, `null`, `"text"`, `7`, ``} {
			_, err := Decode([]byte(payload), limits)
			require.ErrorIs(t, err, ErrDecode, "payload %q", payload)
		}
	})

	t.Run("trailing data", func(t *testing.T) {
		_, err := Decode([]byte(`{"seed":1} {"seed":2}`), limits)
		require.ErrorIs(t, err, ErrDecode)
	})

	t.Run("extra fields are ignored", func(t *testing.T) {
		req, err := Decode([]byte(`{"seed":1,"prompt":"p","num_steps":1,"height":8,"width":8,"model":"x"}`), limits)
		require.NoError(t, err)
		require.Equal(t, "p", req.Prompt)
	})
}

func TestIntegerCoercion(t *testing.T) {
	limits := DefaultLimits()

	tests := []struct {
		name    string
		seed    string
		want    int64
		wantErr bool
	}{
		{name: "integer", seed: `7`, want: 7},
		{name: "negative", seed: `-3`, want: -3},
		{name: "integral float", seed: `2.0`, want: 2},
		{name: "exponent", seed: `1e3`, want: 1000},
		{name: "numeric string", seed: `"12"`, want: 12},
		{name: "padded numeric string", seed: `" 12 "`, want: 12},
		{name: "fractional", seed: `1.5`, wantErr: true},
		{name: "fractional string", seed: `"1.5"`, wantErr: true},
		{name: "word", seed: `"abc"`, wantErr: true},
		{name: "bool", seed: `true`, wantErr: true},
		{name: "null", seed: `null`, wantErr: true},
		{name: "object", seed: `{}`, wantErr: true},
		{name: "too large", seed: `1e300`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := `{"seed":` + tt.seed + `,"prompt":"p","num_steps":1,"height":8,"width":8}`
			req, err := Decode([]byte(payload), limits)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidField)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, req.Seed)
		})
	}
}

func TestValidateLimits(t *testing.T) {
	limits := Limits{MaxPromptLength: 10, MaxSteps: 50, MaxDimension: 1024}
	base := Request{Seed: 1, Prompt: "fox", NumSteps: 4, Height: 512, Width: 512}

	t.Run("within limits", func(t *testing.T) {
		require.NoError(t, base.Validate(limits))
	})

	cases := map[string]func(r *Request){
		"blank prompt":    func(r *Request) { r.Prompt = "   " },
		"long prompt":     func(r *Request) { r.Prompt = strings.Repeat("x", 11) },
		"nul in prompt":   func(r *Request) { r.Prompt = "a\x00b" },
		"zero steps":      func(r *Request) { r.NumSteps = 0 },
		"too many steps":  func(r *Request) { r.NumSteps = 51 },
		"negative height": func(r *Request) { r.Height = -1 },
		"too wide":        func(r *Request) { r.Width = 2048 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := base
			mutate(&r)
			require.ErrorIs(t, r.Validate(limits), ErrInvalidField)
		})
	}

	t.Run("zero limits disable bounds", func(t *testing.T) {
		r := base
		r.NumSteps = 10_000
		r.Width = 100_000
		require.NoError(t, r.Validate(Limits{}))
	})
}

func TestFromFieldsHTTPNames(t *testing.T) {
	fields := map[string]any{
		"seed":   "1",
		"prompt": "x",
		"steps":  "1",
		"height": "64",
		"width":  "64",
	}

	req, err := FromFields(fields, HTTPFields, DefaultLimits())
	require.NoError(t, err)
	require.Equal(t, Request{Seed: 1, Prompt: "x", NumSteps: 1, Height: 64, Width: 64}, req)

	delete(fields, "steps")
	fields["num_steps"] = "1"
	_, err = FromFields(fields, HTTPFields, DefaultLimits())
	require.ErrorIs(t, err, ErrMissingField)
}

func TestRequestRoundTrip(t *testing.T) {
	in := Request{Seed: 9, Prompt: "lighthouse", NumSteps: 2, Height: 64, Width: 128}
	data, err := in.Marshal()
	require.NoError(t, err)
	require.JSONEq(t, `{"seed":9,"prompt":"lighthouse","num_steps":2,"height":64,"width":128}`, string(data))

	out, err := Decode(data, DefaultLimits())
	require.NoError(t, err)
	require.Equal(t, in, out)
	require.Equal(t, int64(9), out.Params().Seed)
}
