// Package imgpool provides a pool of image generation workers behind a NATS
// queue group.
//
// Every worker subscribes to the same subject in the same queue group, so each
// job published with a reply address is delivered to exactly one worker. The
// worker decodes the job, calls its generation backend and publishes exactly one
// reply: the image bytes with headers mediaType and success on success, or an
// empty body with success=false on failure.
//
// # Quick Start
//
//	nc, err := nats.Connect("nats://localhost:4223")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := imgpool.DefaultConfig()
//	w, err := imgpool.NewWorker(&cfg, nc, pattern.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop(context.Background())
//
// # Lifecycle
//
// Workers progress through a state machine:
//
//	INIT → RUNNING → DRAINING → CLOSED
//
// Stop moves a running worker to DRAINING: it leaves the queue group, finishes
// every job it has already received, publishes those replies and then drains
// and closes its connection. In-flight generations are never cancelled by a
// graceful stop; only the drain deadline can cut them off.
//
// # Job Format
//
// A job is a JSON object with the fields seed, prompt, num_steps, height and
// width. The client package builds and sends jobs; the gateway package exposes
// the same generation over HTTP.
package imgpool
