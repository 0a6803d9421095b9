// Package testing provides test utilities for imgpool.
//
// It offers an embedded NATS server with JetStream, a scripted generation backend
// and a logger that writes through testing.T, in the spirit of net/http/httptest.
//
// Example usage:
//
//	import (
//	    "testing"
//	    imgtest "github.com/arloliu/imgpool/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    ns, nc := imgtest.StartEmbeddedNATS(t)
//	    backend := imgtest.NewStubBackend()
//	    // ...
//	}
package testing
