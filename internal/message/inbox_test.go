package message

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInboxPriorityOrder(t *testing.T) {
	q := NewInbox()
	q.Append(&Message{Type: TypeVoid})
	q.Append(&Message{Type: TypeEvent})
	q.Append(&Message{Type: TypeRequest})
	q.Append(&Message{Type: TypeResponse})

	require.Equal(t, TypeResponse, q.Get().Type)
	require.Equal(t, TypeRequest, q.Get().Type)
	require.Equal(t, TypeEvent, q.Get().Type)
	require.Equal(t, TypeVoid, q.Get().Type)
	require.Nil(t, q.Get())
}

func TestInboxFIFOWithinClass(t *testing.T) {
	q := NewInbox()
	q.Append(&Message{Type: TypeEvent, SourceURI: "first"})
	q.Append(&Message{Type: TypeEvent, SourceURI: "second"})

	require.Equal(t, "first", q.Get().SourceURI)
	require.Equal(t, "second", q.Get().SourceURI)
}

func TestInboxPrependIsUrgent(t *testing.T) {
	q := NewInbox()
	q.Append(&Message{Type: TypeEvent, SourceURI: "appended"})
	q.Prepend(&Message{Type: TypeEvent, SourceURI: "prepended"})

	require.Equal(t, "prepended", q.Get().SourceURI)
}

func TestLocalMoveBufferFullReturnsError(t *testing.T) {
	buf := NewLocalMoveBuffer(1)
	defer buf.Close()

	ctx := context.Background()
	require.NoError(t, buf.Post(ctx, &Message{Type: TypeVoid}))
	require.ErrorIs(t, buf.Post(ctx, &Message{Type: TypeVoid}), ErrBufferFull)

	m, ok := buf.TakeAway(ctx)
	require.True(t, ok)
	require.Equal(t, TypeVoid, m.Type)

	_, ok = buf.TakeAway(ctx)
	require.False(t, ok)
}
