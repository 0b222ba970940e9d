package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxResponseSize limits the response body size read from the platform
const maxResponseSize = 10 * 1024 * 1024

const (
	pathSearchOrders    = "/order/202309/orders/search"
	pathGetOrders       = "/order/202309/orders"
	pathPackageDetail   = "/fulfillment/202309/packages/%s"
	pathPriceDetail     = "/order/202407/orders/%s/price_detail"
	pathSplitAttributes = "/fulfillment/202309/orders/split_attributes"
)

// Client is an authenticated Open API client bound to one shop
type Client struct {
	config     *Config
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a client for the given shop configuration
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		now: time.Now,
	}, nil
}

// SearchOrders returns one page of orders matching the filter
func (c *Client) SearchOrders(ctx context.Context, req *SearchOrdersRequest) (*SearchOrdersResponse, error) {
	query := url.Values{}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	query.Set("page_size", strconv.Itoa(pageSize))
	if req.PageToken != "" {
		query.Set("page_token", req.PageToken)
	}

	var resp SearchOrdersResponse
	if err := c.do(ctx, http.MethodPost, pathSearchOrders, query, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetOrders fetches the full detail of the given order ids
func (c *Client) GetOrders(ctx context.Context, orderIDs []string) ([]Order, error) {
	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	query := url.Values{}
	query.Set("ids", strings.Join(orderIDs, ","))

	var resp getOrdersResponse
	if err := c.do(ctx, http.MethodGet, pathGetOrders, query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetPackageDetail fetches fulfillment detail for one package
func (c *Client) GetPackageDetail(ctx context.Context, packageID string) (*PackageDetail, error) {
	var raw json.RawMessage
	path := fmt.Sprintf(pathPackageDetail, url.PathEscape(packageID))
	if err := c.do(ctx, http.MethodGet, path, url.Values{}, nil, &raw); err != nil {
		return nil, err
	}

	var detail PackageDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, fmt.Errorf("%w: package detail: %v", ErrMalformedResponse, err)
	}
	if detail.PackageID == "" {
		detail.PackageID = packageID
	}
	detail.Raw = raw
	return &detail, nil
}

// GetPriceDetail fetches the itemized price breakdown of an order
func (c *Client) GetPriceDetail(ctx context.Context, orderID string) (json.RawMessage, error) {
	var raw json.RawMessage
	path := fmt.Sprintf(pathPriceDetail, url.PathEscape(orderID))
	if err := c.do(ctx, http.MethodGet, path, url.Values{}, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetSplitAttributes fetches can-split / must-split flags for orders
func (c *Client) GetSplitAttributes(ctx context.Context, orderIDs []string) ([]SplitAttribute, error) {
	if len(orderIDs) == 0 {
		return []SplitAttribute{}, nil
	}

	query := url.Values{}
	query.Set("order_ids", strings.Join(orderIDs, ","))

	var resp splitAttributesResponse
	if err := c.do(ctx, http.MethodGet, pathSplitAttributes, query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.SplitAttributes, nil
}

// do signs and sends a request, then decodes the envelope data into out
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("tiktok: failed to marshal body: %w", err)
		}
	}

	query.Set("app_key", c.config.AppKey)
	query.Set("timestamp", strconv.FormatInt(c.now().Unix(), 10))
	if c.config.ShopCipher != "" {
		query.Set("shop_cipher", c.config.ShopCipher)
	}
	query.Set("sign", c.config.Sign(path, query, bodyBytes))

	endpoint := c.config.BaseURL + path + "?" + query.Encode()

	var reader io.Reader
	if bodyBytes != nil {
		reader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("tiktok: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-tts-access-token", c.config.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode >= 400:
		return &APIError{Code: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if env.Code != 0 {
		return &APIError{Code: env.Code, Message: env.Message, RequestID: env.RequestID}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
