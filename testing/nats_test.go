package testing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/imgpool/types"
)

func TestStartEmbeddedNATS(t *testing.T) {
	ns, nc := StartEmbeddedNATS(t)

	require.True(t, nc.IsConnected())
	require.True(t, ns.ReadyForConnections(time.Second))

	js, err := jetstream.New(nc)
	require.NoError(t, err)
	_, err = js.AccountInfo(t.Context())
	require.NoError(t, err, "JetStream should be enabled")

	other := Connect(t, ns)
	require.True(t, other.IsConnected())
}

func TestStubBackend(t *testing.T) {
	b := NewStubBackend()
	img, err := b.Generate(context.Background(), types.GenerateParams{Seed: 3, Prompt: "owl"})
	require.NoError(t, err)
	require.Equal(t, "img:3:owl", string(img.Data))
	require.Equal(t, StubMediaType, img.MediaType)
	require.Equal(t, 1, b.CallCount())
	require.Equal(t, 1, b.MaxConcurrent())

	b.Err = errors.New("out of memory")
	_, err = b.Generate(context.Background(), types.GenerateParams{})
	require.EqualError(t, err, "out of memory")
	require.Len(t, b.Calls(), 2)
}

func TestFormat(t *testing.T) {
	require.Equal(t, "job done job_id=7 ok=true", format("job done", []any{"job_id", 7, "ok", true}))
	require.Equal(t, "odd key=<missing>", format("odd", []any{"key"}))
}
