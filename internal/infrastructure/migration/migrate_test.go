package migration

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListEmbedded(t *testing.T) {
	names, err := ListEmbedded()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"20260901090000_create_stock_ledger",
		"20260901090100_create_sales",
	}, names)
}

func TestEmbeddedSource(t *testing.T) {
	src, err := EmbeddedSource()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(20260901090000), first)

	r, _, err := src.ReadUp(first)
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	_ = r.Close()
	assert.Contains(t, string(body), "CHECK (quantity_on_hand >= 0)")

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(20260901090100), next)

	r, _, err = src.ReadDown(next)
	require.NoError(t, err)
	body, err = io.ReadAll(r)
	require.NoError(t, err)
	_ = r.Close()
	assert.Contains(t, string(body), "DROP TABLE IF EXISTS sale_cost_logs")
}
