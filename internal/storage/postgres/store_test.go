package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"approvalScope/internal/storage"
)

func TestNullableDecimal(t *testing.T) {
	require.Nil(t, nullableDecimal(decimal.NullDecimal{}))

	text := nullableDecimal(decimal.NewNullDecimal(decimal.RequireFromString("1250.25")))
	require.NotNil(t, text)
	require.Equal(t, "1250.25", *text)
}

func TestNewStoreRequiresDSN(t *testing.T) {
	_, err := NewStore(context.Background(), "")
	require.Error(t, err)
}

func TestStoreIsReportSink(t *testing.T) {
	var sink storage.Storage = &Store{}
	require.NotNil(t, sink)
}
