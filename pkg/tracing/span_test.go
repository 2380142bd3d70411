package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "http.search", "req-1")
	childCtx, child := StartChildSpan(ctx, "query.search")
	child.SetAttr("query", "vec")
	_, grandchild := StartChildSpan(childCtx, "index.load")
	grandchild.End()
	child.End()
	root.End()

	assert.Same(t, root, SpanFromContext(ctx))
	assert.Equal(t, "req-1", child.TraceID)
	assert.Equal(t, "req-1", grandchild.TraceID)

	sum := root.Summary()
	require.Len(t, sum.Children, 1)
	assert.Equal(t, "query.search", sum.Children[0].Name)
	assert.Equal(t, "vec", sum.Children[0].Attrs["query"])
	require.Len(t, sum.Children[0].Children, 1)
	assert.Equal(t, "index.load", sum.Children[0].Children[0].Name)
}

func TestEndIsIdempotent(t *testing.T) {
	_, span := StartSpan(context.Background(), "op", "t")
	span.End()
	d := span.Duration()
	span.End()
	assert.Equal(t, d, span.Duration())
}

func TestChildWithoutParent(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	assert.Empty(t, span.TraceID)
	assert.Same(t, span, SpanFromContext(ctx))
	assert.Nil(t, SpanFromContext(context.Background()))
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, root := StartSpan(context.Background(), "root", "trace-9")
	_, child := StartChildSpan(ctx, "child")
	child.SetAttr("shards", 2)
	child.End()
	root.End()
	root.Log(logger)

	out := buf.String()
	assert.Contains(t, out, "span=root")
	assert.Contains(t, out, "span=child")
	assert.Contains(t, out, "trace_id=trace-9")
	assert.Contains(t, out, "shards=2")
}
