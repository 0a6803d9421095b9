package gateway

import (
	"net/url"

	"github.com/arloliu/imgpool/job"
)

// ParseRequest merges query and body into a validated request.
//
// Query values are taken as strings (first value per key). When body is a JSON
// object its fields override the query fields of the same name; any other body,
// including invalid JSON, is ignored. Field names follow job.HTTPFields.
//
// Parameters:
//   - query: Parsed query string
//   - body: Raw request body, possibly empty
//   - limits: Value bounds to enforce
//
// Returns:
//   - job.Request: The validated request
//   - error: Field errors unwrapping to job.ErrMissingField / job.ErrInvalidField
//
// Example:
//
//	q, _ := url.ParseQuery("seed=2&prompt=x&steps=1&height=64&width=64")
//	req, err := gateway.ParseRequest(q, []byte(`{"seed":"1"}`), job.DefaultLimits())
//	// req.Seed == 1
func ParseRequest(query url.Values, body []byte, limits job.Limits) (job.Request, error) {
	fields := make(map[string]any, len(query))
	for key, values := range query {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}

	if len(body) > 0 {
		if bodyFields, err := job.DecodeFields(body); err == nil {
			for key, value := range bodyFields {
				fields[key] = value
			}
		}
	}

	return job.FromFields(fields, job.HTTPFields, limits)
}
