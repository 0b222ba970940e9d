package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"shop-sync-service/internal/models"
	"shop-sync-service/internal/tiktok"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// associationNamespace seeds deterministic ids of order associations so a
// re-sync of the same remote data produces the same rows.
var associationNamespace = uuid.MustParse("6f1c2b9e-7d4a-4c55-9a0e-3b8f2d1e5c47")

func associationID(orderID, kind, externalID string) string {
	return uuid.NewSHA1(associationNamespace, []byte(orderID+":"+kind+":"+externalID)).String()
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func parseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func marshalString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// mapOrder converts a remote order into a snapshot ready to persist.
// Packages are returned as unenriched stubs.
func mapOrder(remote *tiktok.Order, shop *models.ShopCredential, channel string) *models.OrderSnapshot {
	channelData := string(remote.Raw)
	if channelData == "" {
		channelData = marshalString(remote)
	}

	order := models.Order{
		OrderID:            remote.ID,
		ShopID:             shop.ShopID,
		Channel:            channel,
		UserID:             shop.UserID,
		Status:             remote.Status,
		BuyerEmail:         remote.BuyerEmail,
		BuyerMessage:       remote.BuyerMessage,
		TotalAmount:        decimal.Zero,
		CreateTime:         unixTime(remote.CreateTime),
		UpdateTime:         unixTime(remote.UpdateTime),
		PaidTime:           unixTime(remote.PaidTime),
		DeliveryTime:       unixTime(remote.DeliveryTime),
		ShippingDueTime:    unixTime(remote.ShippingDueTime),
		CollectionDueTime:  unixTime(remote.CollectionDueTime),
		DeliveryDueTime:    unixTime(remote.DeliveryDueTime),
		CancelOrderSLATime: unixTime(remote.CancelOrderSLATime),
		DeliverySLATime:    unixTime(remote.DeliverySLATime),
		RTSSLATime:         unixTime(remote.RTSSLATime),
		TTSSLATime:         unixTime(remote.TTSSLATime),
		ChannelData:        channelData,
	}

	snapshot := &models.OrderSnapshot{
		LineItems: make([]models.OrderLineItem, 0, len(remote.LineItems)),
		Packages:  make([]models.OrderPackage, 0, len(remote.Packages)),
	}

	if p := remote.Payment; p != nil {
		order.Currency = p.Currency
		order.TotalAmount = parseAmount(p.TotalAmount)
		snapshot.Payment = &models.OrderPayment{
			ID:               associationID(remote.ID, "payment", remote.ID),
			Currency:         p.Currency,
			TotalAmount:      parseAmount(p.TotalAmount),
			SubTotal:         parseAmount(p.SubTotal),
			ShippingFee:      parseAmount(p.ShippingFee),
			SellerDiscount:   parseAmount(p.SellerDiscount),
			PlatformDiscount: parseAmount(p.PlatformDiscount),
			Tax:              parseAmount(p.Tax),
			ChannelData:      marshalString(p),
		}
	}

	if a := remote.RecipientAddress; a != nil {
		snapshot.Address = &models.OrderAddress{
			ID:          associationID(remote.ID, "address", remote.ID),
			Name:        a.Name,
			Phone:       a.PhoneNumber,
			FullAddress: a.FullAddress,
			PostalCode:  a.PostalCode,
			RegionCode:  a.RegionCode,
			ChannelData: marshalString(a),
		}
	}

	for i, item := range remote.LineItems {
		externalID := item.ID
		if externalID == "" {
			externalID = "idx-" + strconv.Itoa(i)
		}
		snapshot.LineItems = append(snapshot.LineItems, models.OrderLineItem{
			ID:            associationID(remote.ID, "line_item", externalID),
			LineItemID:    item.ID,
			ProductID:     item.ProductID,
			ProductName:   item.ProductName,
			SkuID:         item.SkuID,
			SkuName:       item.SkuName,
			SellerSku:     item.SellerSku,
			Quantity:      1,
			SalePrice:     parseAmount(item.SalePrice),
			OriginalPrice: parseAmount(item.OriginalPrice),
			DisplayStatus: item.DisplayStatus,
			PackageID:     item.PackageID,
			ChannelData:   marshalString(item),
		})
	}

	for _, pkg := range remote.Packages {
		if pkg.ID == "" {
			continue
		}
		snapshot.Packages = append(snapshot.Packages, packageStub(remote.ID, pkg))
	}

	snapshot.Order = order
	return snapshot
}

// packageStub is the package row kept when detail enrichment fails
func packageStub(orderID string, pkg tiktok.PackageSummary) models.OrderPackage {
	return models.OrderPackage{
		ID:           associationID(orderID, "package", pkg.ID),
		PackageID:    pkg.ID,
		FetchSuccess: false,
		ChannelData:  marshalString(map[string]any{"id": pkg.ID, "fetchSuccess": false}),
	}
}

// enrichPackage merges package detail into the stub row
func enrichPackage(stub models.OrderPackage, detail *tiktok.PackageDetail) models.OrderPackage {
	stub.Status = detail.PackageStatus
	stub.ShippingProviderID = detail.ShippingProviderID
	stub.ShippingProviderName = detail.ShippingProviderName
	stub.TrackingNumber = detail.TrackingNumber
	stub.FetchSuccess = true
	if len(detail.Raw) > 0 {
		stub.ChannelData = string(detail.Raw)
	} else {
		stub.ChannelData = marshalString(detail)
	}
	return stub
}

// mergeChannelData sets key on a serialized JSON object, starting a new
// object when base is empty or not an object.
func mergeChannelData(base, key string, value any) (string, error) {
	fields := map[string]json.RawMessage{}
	if base != "" {
		if err := json.Unmarshal([]byte(base), &fields); err != nil || fields == nil {
			fields = map[string]json.RawMessage{}
		}
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	fields[key] = encoded

	merged, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal channel data: %w", err)
	}
	return string(merged), nil
}
