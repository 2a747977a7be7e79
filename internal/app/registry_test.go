package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
)

func TestRegistry_BindReplaceUnbind(t *testing.T) {
	r := NewRegistry()
	first := core.NewViewerSession(&domain.Viewer{ID: "v1"})
	firstCtx, firstCancel := context.WithCancel(context.Background())
	r.Bind(first, firstCancel)

	got, ok := r.Get("v1")
	require.True(t, ok)
	assert.Same(t, first, got)

	second := core.NewViewerSession(&domain.Viewer{ID: "v1"})
	r.Bind(second, func() {})
	assert.Error(t, firstCtx.Err(), "replaced session is cancelled")
	assert.Equal(t, 1, r.Len())

	// A stale session cannot unbind its replacement.
	r.Unbind("v1", first)
	assert.Equal(t, 1, r.Len())

	r.Unbind("v1", second)
	assert.Equal(t, 0, r.Len())
	_, ok = r.Get("v1")
	assert.False(t, ok)
}

func TestRegistry_CancelAll(t *testing.T) {
	r := NewRegistry()
	var ctxs []context.Context
	for _, id := range []domain.ViewerID{"a", "b", "c"} {
		ctx, cancel := context.WithCancel(context.Background())
		ctxs = append(ctxs, ctx)
		r.Bind(core.NewViewerSession(&domain.Viewer{ID: id}), cancel)
	}
	assert.Len(t, r.Sessions(), 3)

	r.CancelAll()
	for _, ctx := range ctxs {
		assert.Error(t, ctx.Err())
	}
}
