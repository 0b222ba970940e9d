package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Channels
const (
	ChannelTikTok = "TIKTOK"
)

// Shop credential statuses
const (
	ShopStatusActive   = "ACTIVE"
	ShopStatusExpired  = "EXPIRED"
	ShopStatusInactive = "INACTIVE"
)

// ShopCredential represents one connected merchant shop
type ShopCredential struct {
	ID                   int64      `db:"id" json:"id"`
	ShopID               string     `db:"shop_id" json:"shop_id"`
	ShopName             string     `db:"shop_name" json:"shop_name"`
	Channel              string     `db:"channel" json:"channel"`
	UserID               string     `db:"user_id" json:"user_id"`
	AccessToken          string     `db:"access_token" json:"-"`
	AccessTokenExpiresAt *time.Time `db:"access_token_expires_at" json:"access_token_expires_at,omitempty"`
	ShopCipher           *string    `db:"shop_cipher" json:"shop_cipher,omitempty"`
	AppKey               string     `db:"app_key" json:"app_key"`
	AppSecret            string     `db:"app_secret" json:"-"`
	BaseURL              string     `db:"base_url" json:"base_url"`
	ChannelData          *string    `db:"channel_data" json:"channel_data,omitempty"`
	Status               string     `db:"status" json:"status"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// ResolveShopCipher returns the shop cipher from the direct column, falling
// back to the first cipher field present in the channel data blob.
func (s *ShopCredential) ResolveShopCipher() string {
	if s.ShopCipher != nil && *s.ShopCipher != "" {
		return *s.ShopCipher
	}
	if s.ChannelData == nil || *s.ChannelData == "" {
		return ""
	}

	var blob map[string]any
	if err := json.Unmarshal([]byte(*s.ChannelData), &blob); err != nil {
		return ""
	}
	for _, key := range []string{"shopCipher", "shop_cipher", "cipher"} {
		if v, ok := blob[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Order statuses reported by the platform
const (
	OrderStatusUnpaid           = "UNPAID"
	OrderStatusOnHold           = "ON_HOLD"
	OrderStatusAwaitingShipment = "AWAITING_SHIPMENT"
	OrderStatusPartiallyShipped = "PARTIALLY_SHIPPING"
	OrderStatusAwaitingCollect  = "AWAITING_COLLECTION"
	OrderStatusInTransit        = "IN_TRANSIT"
	OrderStatusDelivered        = "DELIVERED"
	OrderStatusCompleted        = "COMPLETED"
	OrderStatusCancelled        = "CANCELLED"
)

// Local custom statuses, never set by the platform
const (
	CustomStatusDelivered = "DELIVERED"
)

// Order is the local replica of one remote order
type Order struct {
	ID                 string          `db:"id" json:"id"`
	OrderID            string          `db:"order_id" json:"order_id"`
	ShopID             string          `db:"shop_id" json:"shop_id"`
	Channel            string          `db:"channel" json:"channel"`
	UserID             string          `db:"user_id" json:"user_id"`
	Status             string          `db:"status" json:"status"`
	CustomStatus       *string         `db:"custom_status" json:"custom_status,omitempty"`
	BuyerEmail         string          `db:"buyer_email" json:"buyer_email"`
	BuyerMessage       string          `db:"buyer_message" json:"buyer_message"`
	Currency           string          `db:"currency" json:"currency"`
	TotalAmount        decimal.Decimal `db:"total_amount" json:"total_amount"`
	CreateTime         *time.Time      `db:"create_time" json:"create_time,omitempty"`
	UpdateTime         *time.Time      `db:"update_time" json:"update_time,omitempty"`
	PaidTime           *time.Time      `db:"paid_time" json:"paid_time,omitempty"`
	DeliveryTime       *time.Time      `db:"delivery_time" json:"delivery_time,omitempty"`
	ShippingDueTime    *time.Time      `db:"shipping_due_time" json:"shipping_due_time,omitempty"`
	CollectionDueTime  *time.Time      `db:"collection_due_time" json:"collection_due_time,omitempty"`
	DeliveryDueTime    *time.Time      `db:"delivery_due_time" json:"delivery_due_time,omitempty"`
	CancelOrderSLATime *time.Time      `db:"cancel_order_sla_time" json:"cancel_order_sla_time,omitempty"`
	DeliverySLATime    *time.Time      `db:"delivery_sla_time" json:"delivery_sla_time,omitempty"`
	RTSSLATime         *time.Time      `db:"rts_sla_time" json:"rts_sla_time,omitempty"`
	TTSSLATime         *time.Time      `db:"tts_sla_time" json:"tts_sla_time,omitempty"`
	CanSplit           *bool           `db:"can_split" json:"can_split,omitempty"`
	MustSplit          *bool           `db:"must_split" json:"must_split,omitempty"`
	ChannelData        string          `db:"channel_data" json:"channel_data"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderLineItem represents one purchased unit of an order
type OrderLineItem struct {
	ID            string          `db:"id" json:"id"`
	OrderID       string          `db:"order_id" json:"order_id"`
	LineItemID    string          `db:"line_item_id" json:"line_item_id"`
	ProductID     string          `db:"product_id" json:"product_id"`
	ProductName   string          `db:"product_name" json:"product_name"`
	SkuID         string          `db:"sku_id" json:"sku_id"`
	SkuName       string          `db:"sku_name" json:"sku_name"`
	SellerSku     string          `db:"seller_sku" json:"seller_sku"`
	Quantity      int             `db:"quantity" json:"quantity"`
	SalePrice     decimal.Decimal `db:"sale_price" json:"sale_price"`
	OriginalPrice decimal.Decimal `db:"original_price" json:"original_price"`
	DisplayStatus string          `db:"display_status" json:"display_status"`
	PackageID     string          `db:"package_id" json:"package_id"`
	ChannelData   string          `db:"channel_data" json:"channel_data"`
}

// OrderPayment holds the payment block of an order
type OrderPayment struct {
	ID               string          `db:"id" json:"id"`
	OrderID          string          `db:"order_id" json:"order_id"`
	Currency         string          `db:"currency" json:"currency"`
	TotalAmount      decimal.Decimal `db:"total_amount" json:"total_amount"`
	SubTotal         decimal.Decimal `db:"sub_total" json:"sub_total"`
	ShippingFee      decimal.Decimal `db:"shipping_fee" json:"shipping_fee"`
	SellerDiscount   decimal.Decimal `db:"seller_discount" json:"seller_discount"`
	PlatformDiscount decimal.Decimal `db:"platform_discount" json:"platform_discount"`
	Tax              decimal.Decimal `db:"tax" json:"tax"`
	ChannelData      string          `db:"channel_data" json:"channel_data"`
}

// OrderAddress holds the recipient address of an order
type OrderAddress struct {
	ID          string `db:"id" json:"id"`
	OrderID     string `db:"order_id" json:"order_id"`
	Name        string `db:"name" json:"name"`
	Phone       string `db:"phone" json:"phone"`
	FullAddress string `db:"full_address" json:"full_address"`
	PostalCode  string `db:"postal_code" json:"postal_code"`
	RegionCode  string `db:"region_code" json:"region_code"`
	ChannelData string `db:"channel_data" json:"channel_data"`
}

// OrderPackage represents one shipped unit of an order
type OrderPackage struct {
	ID                   string `db:"id" json:"id"`
	OrderID              string `db:"order_id" json:"order_id"`
	PackageID            string `db:"package_id" json:"package_id"`
	Status               string `db:"status" json:"status"`
	ShippingProviderID   string `db:"shipping_provider_id" json:"shipping_provider_id"`
	ShippingProviderName string `db:"shipping_provider_name" json:"shipping_provider_name"`
	TrackingNumber       string `db:"tracking_number" json:"tracking_number"`
	FetchSuccess         bool   `db:"fetch_success" json:"fetch_success"`
	ChannelData          string `db:"channel_data" json:"channel_data"`
}

// OrderSnapshot is one coherent fetch of an order and all of its associations
type OrderSnapshot struct {
	Order     Order
	LineItems []OrderLineItem
	Payment   *OrderPayment
	Address   *OrderAddress
	Packages  []OrderPackage
}

// OrderPatch carries a partial update of mutable order fields
type OrderPatch struct {
	Status            *string
	ChannelData       *string
	CustomStatus      *string
	ClearCustomStatus bool
}
