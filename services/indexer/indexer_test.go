package indexer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"cdpchain/core/events"
	"cdpchain/core/types"
)

func openTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	idx, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open("  ", nil)
	require.ErrorIs(t, err, ErrDSNRequired)
}

func TestIndexAndQuery(t *testing.T) {
	idx := openTestIndexer(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, 4, []types.Event{
		{Type: events.TypeCDPPositionUpdated, Attributes: map[string]string{"asset": "DOT"}},
		{Type: events.TypeCDPLiquidated, Attributes: map[string]string{"asset": "DOT", "strategy": "auction"}},
	}))
	require.NoError(t, idx.Index(ctx, 7, []types.Event{
		{Type: events.TypeCDPLiquidated, Attributes: map[string]string{"asset": "DOT", "strategy": "dex"}},
	}))

	atFour, err := idx.ByHeight(ctx, 4)
	require.NoError(t, err)
	require.Len(t, atFour, 2)
	require.Equal(t, events.TypeCDPPositionUpdated, atFour[0].Type)

	liquidations, err := idx.ByType(ctx, events.TypeCDPLiquidated, 0)
	require.NoError(t, err)
	require.Len(t, liquidations, 2)
	require.Equal(t, uint64(7), liquidations[0].Height)
	evt, err := liquidations[0].Decode()
	require.NoError(t, err)
	require.Equal(t, "dex", evt.Attributes["strategy"])

	latest, err := idx.LatestHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(7), latest)
}

func TestReindexReplacesHeight(t *testing.T) {
	idx := openTestIndexer(t)
	ctx := context.Background()

	latest, err := idx.LatestHeight(ctx)
	require.NoError(t, err)
	require.Zero(t, latest)

	idx.CommitHook(3, []types.Event{{Type: "a"}, {Type: "b"}})
	idx.CommitHook(3, []types.Event{{Type: "c"}})

	rows, err := idx.ByHeight(ctx, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "c", rows[0].Type)
}
