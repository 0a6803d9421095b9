// Package reply encodes job outcomes onto the bus.
package reply

import (
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/arloliu/imgpool/job"
)

// Sender publishes one message with headers.
type Sender interface {
	Publish(address string, payload []byte, headers nats.Header) error
}

// Publisher sends exactly one reply message per call.
type Publisher struct {
	sender       Sender
	exposeReason bool
}

// New creates a publisher. When exposeReason is true, failed replies also carry
// the coarse failure code in the "reason" header.
func New(sender Sender, exposeReason bool) *Publisher {
	return &Publisher{sender: sender, exposeReason: exposeReason}
}

// Publish sends the reply for outcome to replyAddress. Fire-and-forget: the
// returned error only covers handing the message to the client.
func (p *Publisher) Publish(replyAddress string, outcome job.Outcome) error {
	outcome = job.Normalize(outcome)
	r := job.ReplyFor(outcome)
	hdr := Header(r)

	if f, ok := outcome.(job.Failure); ok && p.exposeReason {
		hdr.Set(job.HeaderReason, string(f.Reason))
	}

	return p.sender.Publish(replyAddress, r.Payload, hdr)
}

// Header returns the wire headers of r.
func Header(r job.Reply) nats.Header {
	hdr := nats.Header{}
	hdr.Set(job.HeaderMediaType, r.MediaType)
	hdr.Set(job.HeaderSuccess, strconv.FormatBool(r.Success))

	return hdr
}

// Decode reads a reply message. Anything but the literal "true" in the success
// header is a failure, and a failure never carries a payload.
func Decode(msg *nats.Msg) job.Reply {
	if msg.Header.Get(job.HeaderSuccess) != "true" || len(msg.Data) == 0 {
		return job.Reply{}
	}

	return job.Reply{
		Success:   true,
		Payload:   msg.Data,
		MediaType: msg.Header.Get(job.HeaderMediaType),
	}
}

// Reason returns the failure code of a reply message, if the worker exposed one.
func Reason(msg *nats.Msg) job.FailureReason {
	return job.FailureReason(msg.Header.Get(job.HeaderReason))
}
