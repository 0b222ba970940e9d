package service

import (
	"encoding/json"
	"testing"

	"shop-sync-service/internal/models"
	"shop-sync-service/internal/tiktok"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapOrder(t *testing.T) {
	shop := activeShop("S1")
	remote := remoteOrder("O1", "PK1")
	remote.ShippingDueTime = 1700003600

	snap := mapOrder(&remote, &shop, models.ChannelTikTok)

	assert.Equal(t, "O1", snap.Order.OrderID)
	assert.Equal(t, "S1", snap.Order.ShopID)
	assert.Equal(t, "user-1", snap.Order.UserID)
	assert.Equal(t, "USD", snap.Order.Currency)
	assert.Equal(t, "25.5", snap.Order.TotalAmount.String())
	require.NotNil(t, snap.Order.ShippingDueTime)
	assert.Equal(t, int64(1700003600), snap.Order.ShippingDueTime.Unix())
	assert.Nil(t, snap.Order.PaidTime)

	require.NotNil(t, snap.Payment)
	assert.Equal(t, "5.5", snap.Payment.ShippingFee.String())
	require.NotNil(t, snap.Address)
	assert.Equal(t, "Jane", snap.Address.Name)

	require.Len(t, snap.LineItems, 2)
	assert.Equal(t, "O1-L1", snap.LineItems[0].LineItemID)
	assert.Equal(t, 1, snap.LineItems[0].Quantity)

	require.Len(t, snap.Packages, 1)
	assert.False(t, snap.Packages[0].FetchSuccess)

	again := mapOrder(&remote, &shop, models.ChannelTikTok)
	assert.Equal(t, snap.LineItems[0].ID, again.LineItems[0].ID)
	assert.Equal(t, snap.Packages[0].ID, again.Packages[0].ID)
	assert.NotEqual(t, snap.LineItems[0].ID, snap.LineItems[1].ID)
}

func TestMapOrder_KeepsRawChannelData(t *testing.T) {
	var remote tiktok.Order
	require.NoError(t, json.Unmarshal([]byte(`{"id":"O1","status":"UNPAID","extra_field":"kept"}`), &remote))
	shop := activeShop("S1")

	snap := mapOrder(&remote, &shop, models.ChannelTikTok)
	assert.Contains(t, snap.Order.ChannelData, "extra_field")
	assert.Nil(t, snap.Payment)
	assert.True(t, snap.Order.TotalAmount.IsZero())
}

func TestMergeChannelData(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{name: "existing object", base: `{"a":1}`, want: `{"a":1,"k":{"x":"y"}}`},
		{name: "empty base", base: "", want: `{"k":{"x":"y"}}`},
		{name: "not an object", base: `[1,2]`, want: `{"k":{"x":"y"}}`},
		{name: "overwrites key", base: `{"k":false}`, want: `{"k":{"x":"y"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mergeChannelData(tt.base, "k", map[string]string{"x": "y"})
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}
