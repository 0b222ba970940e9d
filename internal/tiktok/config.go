package tiktok

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"
)

// DefaultAPIBaseURL is the production Open API endpoint
const DefaultAPIBaseURL = "https://open-api.tiktokglobalshop.com"

// Errors for client configuration
var (
	ErrConfigMissingAppKey      = errors.New("tiktok: app key is required")
	ErrConfigMissingAppSecret   = errors.New("tiktok: app secret is required")
	ErrConfigMissingAccessToken = errors.New("tiktok: access token is required")
)

// Config holds the credentials of one shop for the Open API
type Config struct {
	BaseURL     string
	AppKey      string
	AppSecret   string
	AccessToken string
	ShopCipher  string
	Timeout     time.Duration
}

// Validate checks required fields and fills defaults
func (c *Config) Validate() error {
	if c.AppKey == "" {
		return ErrConfigMissingAppKey
	}
	if c.AppSecret == "" {
		return ErrConfigMissingAppSecret
	}
	if c.AccessToken == "" {
		return ErrConfigMissingAccessToken
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultAPIBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return nil
}

// Sign computes the request signature.
// The sign string is: secret + path + sorted(key+value) + body + secret, hashed with
// HMAC-SHA256 keyed by the app secret. sign and access_token never take part.
func (c *Config) Sign(path string, query url.Values, body []byte) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "sign" || k == "access_token" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(c.AppSecret)
	builder.WriteString(path)
	for _, k := range keys {
		builder.WriteString(k)
		builder.WriteString(query.Get(k))
	}
	builder.Write(body)
	builder.WriteString(c.AppSecret)

	h := hmac.New(sha256.New, []byte(c.AppSecret))
	h.Write([]byte(builder.String()))
	return hex.EncodeToString(h.Sum(nil))
}
