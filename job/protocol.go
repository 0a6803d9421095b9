package job

// Bus addressing defaults shared by workers and publishers.
const (
	// DefaultSubject is the subject jobs are published on.
	DefaultSubject = "img_gen"

	// DefaultQueueGroup is the queue group all workers join.
	DefaultQueueGroup = "workers"
)

// Reply header names. The values of HeaderSuccess are the literals "true" and "false".
const (
	HeaderMediaType = "mediaType"
	HeaderSuccess   = "success"
	HeaderReason    = "reason"
)

// FieldNames maps request fields to the keys used by a particular transport.
type FieldNames struct {
	Seed     string
	Prompt   string
	NumSteps string
	Height   string
	Width    string
}

// BusFields are the JSON keys used on the message bus.
var BusFields = FieldNames{
	Seed:     "seed",
	Prompt:   "prompt",
	NumSteps: "num_steps",
	Height:   "height",
	Width:    "width",
}

// HTTPFields are the keys used by the HTTP gateway. Steps is spelled "steps" there.
var HTTPFields = FieldNames{
	Seed:     "seed",
	Prompt:   "prompt",
	NumSteps: "steps",
	Height:   "height",
	Width:    "width",
}
