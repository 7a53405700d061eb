package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	_, ok := RequestID(context.Background())
	assert.False(t, ok)

	_, ok = RequestID(WithRequestID(context.Background(), ""))
	assert.False(t, ok, "empty id is treated as absent")

	id, ok := RequestID(WithRequestID(context.Background(), "req-1"))
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
}

func TestTraceID(t *testing.T) {
	ctx := WithTraceID(WithRequestID(context.Background(), "req-1"), "4bf92f3577b34da6a3ce929d0e0e4736")

	id, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", id)

	rid, _ := RequestID(ctx)
	assert.Equal(t, "req-1", rid, "keys do not collide")
}
