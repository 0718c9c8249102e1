package inference

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticClient struct {
	reply string
}

func (c *staticClient) Infer(context.Context, string) (string, error) {
	return c.reply, nil
}

func (c *staticClient) InferStream(_ context.Context, _ string, fn StreamFunc) error {
	for _, chunk := range []string{c.reply[:1], c.reply[1:]} {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("primary", &staticClient{reply: "ok"}))

	client, err := r.Get("primary")
	require.NoError(t, err)

	out, err := client.Infer(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("primary", &staticClient{}))
	assert.Error(t, r.Register("primary", &staticClient{}))
}

func TestGetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")
	assert.Error(t, err)
}

func TestDefaultIsFirstRegistered(t *testing.T) {
	r := NewRegistry()
	first := &staticClient{reply: "first"}
	require.NoError(t, r.Register("a", first))
	require.NoError(t, r.Register("b", &staticClient{reply: "second"}))

	client, err := r.Default()
	require.NoError(t, err)
	assert.Same(t, first, client)
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestDefaultEmptyRegistry(t *testing.T) {
	r := NewRegistry()
	_, err := r.Default()
	assert.Error(t, err)
}

func TestStreamDeliversChunks(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("primary", &staticClient{reply: "hi"}))

	client, err := r.Get("primary")
	require.NoError(t, err)

	var chunks []string
	require.NoError(t, client.InferStream(context.Background(), "prompt", func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	}))
	assert.Equal(t, []string{"h", "i"}, chunks)
}
