package tiktok

import "encoding/json"

// envelope wraps every Open API response
type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

// SearchOrdersRequest filters an order search; times are unix seconds
type SearchOrdersRequest struct {
	CreateTimeGE *int64 `json:"create_time_ge,omitempty"`
	CreateTimeLT *int64 `json:"create_time_lt,omitempty"`
	UpdateTimeGE *int64 `json:"update_time_ge,omitempty"`
	UpdateTimeLT *int64 `json:"update_time_lt,omitempty"`
	OrderStatus  string `json:"order_status,omitempty"`

	PageSize  int    `json:"-"`
	PageToken string `json:"-"`
}

// SearchOrdersResponse is one page of an order search
type SearchOrdersResponse struct {
	NextPageToken string  `json:"next_page_token"`
	TotalCount    int     `json:"total_count"`
	Orders        []Order `json:"orders"`
}

type getOrdersResponse struct {
	Orders []Order `json:"orders"`
}

// Order is the platform representation of one order
type Order struct {
	ID                 string           `json:"id"`
	Status             string           `json:"status"`
	UserID             string           `json:"user_id"`
	BuyerEmail         string           `json:"buyer_email"`
	BuyerMessage       string           `json:"buyer_message"`
	CreateTime         int64            `json:"create_time"`
	UpdateTime         int64            `json:"update_time"`
	PaidTime           int64            `json:"paid_time"`
	DeliveryTime       int64            `json:"delivery_time"`
	ShippingDueTime    int64            `json:"shipping_due_time"`
	CollectionDueTime  int64            `json:"collection_due_time"`
	DeliveryDueTime    int64            `json:"delivery_due_time"`
	CancelOrderSLATime int64            `json:"cancel_order_sla_time"`
	DeliverySLATime    int64            `json:"delivery_sla_time"`
	RTSSLATime         int64            `json:"rts_sla_time"`
	TTSSLATime         int64            `json:"tts_sla_time"`
	Payment            *Payment         `json:"payment"`
	RecipientAddress   *Address         `json:"recipient_address"`
	LineItems          []LineItem       `json:"line_items"`
	Packages           []PackageSummary `json:"packages"`

	// Raw is the undecoded order object, kept as channel data
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the order and keeps the raw bytes
func (o *Order) UnmarshalJSON(b []byte) error {
	type alias Order
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*o = Order(a)
	o.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// PackageIDs lists the ids of the order's packages
func (o *Order) PackageIDs() []string {
	ids := make([]string, 0, len(o.Packages))
	for _, p := range o.Packages {
		if p.ID != "" {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Payment amounts are decimal strings in the order currency
type Payment struct {
	Currency         string `json:"currency"`
	SubTotal         string `json:"sub_total"`
	ShippingFee      string `json:"shipping_fee"`
	SellerDiscount   string `json:"seller_discount"`
	PlatformDiscount string `json:"platform_discount"`
	TotalAmount      string `json:"total_amount"`
	Tax              string `json:"tax"`
}

type Address struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	FullAddress string `json:"full_address"`
	PostalCode  string `json:"postal_code"`
	RegionCode  string `json:"region_code"`
}

type LineItem struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	SkuID         string `json:"sku_id"`
	SkuName       string `json:"sku_name"`
	SellerSku     string `json:"seller_sku"`
	SalePrice     string `json:"sale_price"`
	OriginalPrice string `json:"original_price"`
	Currency      string `json:"currency"`
	DisplayStatus string `json:"display_status"`
	PackageID     string `json:"package_id"`
}

type PackageSummary struct {
	ID string `json:"id"`
}

// PackageDetail is the fulfillment view of one package
type PackageDetail struct {
	PackageID            string `json:"package_id"`
	PackageStatus        string `json:"package_status"`
	ShippingProviderID   string `json:"shipping_provider_id"`
	ShippingProviderName string `json:"shipping_provider_name"`
	TrackingNumber       string `json:"tracking_number"`

	Raw json.RawMessage `json:"-"`
}

// SplitAttribute tells whether an order's packages can or must be split
type SplitAttribute struct {
	OrderID   string `json:"order_id"`
	CanSplit  bool   `json:"can_split"`
	MustSplit bool   `json:"must_split"`
	Reason    string `json:"reason,omitempty"`
}

type splitAttributesResponse struct {
	SplitAttributes []SplitAttribute `json:"split_attributes"`
}
