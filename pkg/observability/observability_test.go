package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledProviderIsNoOp(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, DefaultConfig("syncx-test"))
	require.NoError(t, err)

	// Every call must be safe without initialized instruments.
	p.RecordRequest(ctx)
	p.RecordError(ctx, errors.New("boom"))
	p.RecordDuration(ctx, 10*time.Millisecond)
	p.JobStarted(ctx)
	p.JobFinished(ctx)

	spanCtx, span := p.StartSpan(ctx, "test.op")
	assert.NotNil(t, spanCtx)
	span.End()

	assert.NoError(t, p.Shutdown(ctx))
}

func TestNilConfigDefaults(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "syncx", p.config.ServiceName)
}
