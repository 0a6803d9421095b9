package job

import "github.com/arloliu/imgpool/types"

// Reply is the answer to exactly one Request.
type Reply struct {
	Success   bool
	Payload   []byte
	MediaType string
}

// FailureReason is a coarse classification of a failed job.
type FailureReason string

const (
	// ReasonInvalidRequest covers undecodable payloads and field validation failures.
	ReasonInvalidRequest FailureReason = "invalid_request"

	// ReasonGenerationFailed covers backend errors, panics and cancellation.
	ReasonGenerationFailed FailureReason = "generation_failed"
)

// Outcome is the result of handling one job: either Success or Failure.
type Outcome interface {
	outcome()
}

// Success carries a generated image.
type Success struct {
	Payload   []byte
	MediaType string
}

// Failure carries the reason a job produced no image. Err is for logs only.
type Failure struct {
	Reason FailureReason
	Err    error
}

func (Success) outcome() {}
func (Failure) outcome() {}

// Normalize turns a Success without payload or media type into a Failure.
// A nil outcome is a generation failure.
func Normalize(o Outcome) Outcome {
	switch v := o.(type) {
	case Success:
		if len(v.Payload) == 0 || v.MediaType == "" {
			return Failure{Reason: ReasonGenerationFailed, Err: types.ErrEmptyImage}
		}

		return v
	case Failure:
		return v
	default:
		return Failure{Reason: ReasonGenerationFailed, Err: types.ErrGenerationFailed}
	}
}

// ReplyFor maps an outcome to its wire reply.
func ReplyFor(o Outcome) Reply {
	if s, ok := Normalize(o).(Success); ok {
		return Reply{Success: true, Payload: s.Payload, MediaType: s.MediaType}
	}

	return Reply{}
}

// Label returns the metrics label of an outcome: "success" or the failure reason.
func Label(o Outcome) string {
	switch v := Normalize(o).(type) {
	case Failure:
		return string(v.Reason)
	default:
		return "success"
	}
}
