package correlation

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

func TestEnsureKeepsExisting(t *testing.T) {
	ctx := WithID(context.Background(), " cid-1 ")
	ctx, id := Ensure(ctx)
	require.Equal(t, "cid-1", id)
	require.Equal(t, "cid-1", FromContext(ctx))
}

func TestEnsureGeneratesULID(t *testing.T) {
	ctx, id := Ensure(context.Background())
	_, err := ulid.ParseStrict(id)
	require.NoError(t, err)
	require.Equal(t, id, FromContext(ctx))

	_, other := Ensure(context.Background())
	require.NotEqual(t, id, other)
}

func TestBlankIDIsIgnored(t *testing.T) {
	ctx := WithID(context.Background(), "  ")
	require.Empty(t, FromContext(ctx))
}
