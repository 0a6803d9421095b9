// Package testutil provides helpers for integration tests that run several
// workers against one embedded NATS server.
//
// Note: For single-server setup and stub backends, use the
// github.com/arloliu/imgpool/testing package. This package builds pools and
// load on top of it.
package testutil
