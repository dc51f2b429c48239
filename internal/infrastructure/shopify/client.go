package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shopify-orders-exporter/internal/domain"
	"shopify-orders-exporter/internal/infrastructure/metrics"
	"shopify-orders-exporter/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/peterhellberg/link"
	"github.com/rs/zerolog"
)

// apiVersion pins the Admin API version for every direct HTTP call.
const apiVersion = "2025-04"

// ordersPageSize is the listing page size; 250 is the API maximum.
const ordersPageSize = 250

type client struct {
	apiKey      string
	apiSecret   string
	app         goshopify.App
	httpClient  *http.Client
	rateLimiter *RateLimiter
	retry       RetryConfig
	logger      zerolog.Logger
}

// NewClient creates a new Shopify client adapter
func NewClient(apiKey, apiSecret string) ports.ShopifyClient {
	return NewClientWithOptions(apiKey, apiSecret, nil, DefaultRetryConfig(), zerolog.Nop())
}

// NewClientWithOptions creates a client with rate limiting and retry options
func NewClientWithOptions(
	apiKey, apiSecret string,
	rateLimiter *RateLimiter,
	retryConfig RetryConfig,
	logger zerolog.Logger,
) ports.ShopifyClient {
	app := goshopify.App{
		ApiKey:    apiKey,
		ApiSecret: apiSecret,
	}
	return &client{
		apiKey:      apiKey,
		apiSecret:   apiSecret,
		app:         app,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		rateLimiter: rateLimiter,
		retry:       retryConfig,
		logger:      logger,
	}
}

// createClient is a helper to create a goshopify client
func (c *client) createClient(shopDomain string, accessToken string) (*goshopify.Client, error) {
	cl, err := goshopify.NewClient(c.app, shopDomain, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return cl, nil
}

// Authentication

func (c *client) GenerateAuthURL(shop string, scopes []string, redirectURI string, state string) (string, error) {
	// Shopify expects scopes comma-separated, no spaces.
	scopesStr := strings.Join(scopes, ",")

	authURL := fmt.Sprintf(
		"https://%s/admin/oauth/authorize?client_id=%s&scope=%s&redirect_uri=%s&state=%s",
		shop,
		c.apiKey,
		url.QueryEscape(scopesStr),
		url.QueryEscape(redirectURI),
		url.QueryEscape(state),
	)

	c.logger.Debug().
		Str("shop", shop).
		Str("scopes", scopesStr).
		Msg("Generated OAuth authorization URL")

	return authURL, nil
}

func (c *client) ExchangeToken(ctx context.Context, shop string, code string, redirectURI string) (string, error) {
	// Shopify requires the redirect_uri to match the one used during
	// authorization. The go-shopify library's GetAccessToken doesn't expose
	// redirect_uri, so we make a direct HTTP call when one is given.
	if redirectURI != "" {
		tokenURL := fmt.Sprintf("https://%s/admin/oauth/access_token", shop)

		values := url.Values{}
		values.Set("client_id", c.apiKey)
		values.Set("client_secret", c.apiSecret)
		values.Set("code", code)
		values.Set("redirect_uri", redirectURI)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(values.Encode()))
		if err != nil {
			return "", fmt.Errorf("failed to create token request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("failed to exchange token: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			return "", fmt.Errorf("failed to exchange token: status %d, body: %s", resp.StatusCode, string(bodyBytes))
		}

		var tokenResponse struct {
			AccessToken string `json:"access_token"`
			Scope       string `json:"scope"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
			return "", fmt.Errorf("failed to decode token response: %w", err)
		}
		if tokenResponse.AccessToken == "" {
			return "", fmt.Errorf("token response contained no access_token")
		}

		return tokenResponse.AccessToken, nil
	}

	// Fall back to go-shopify when no redirectURI is provided
	token, err := c.app.GetAccessToken(ctx, shop, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange token: %w", err)
	}
	return token, nil
}

// Shop API

func (c *client) GetShop(ctx context.Context, shopDomain string, accessToken string) (*goshopify.Shop, error) {
	cl, err := c.createClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	shop, err := cl.Shop.Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	return shop, nil
}

// Billing API

type chargeDoc struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	Price           json.Number `json:"price"`
	Status          string      `json:"status"`
	ReturnURL       string      `json:"return_url"`
	ConfirmationURL string      `json:"confirmation_url"`
}

// chargeEnvelope tolerates both envelope shapes the charge lookup endpoint
// has been observed to return. The plural key wins when both are present.
type chargeEnvelope struct {
	Charges *chargeDoc `json:"recurring_application_charges"`
	Charge  *chargeDoc `json:"recurring_application_charge"`
}

func (e *chargeEnvelope) doc() *chargeDoc {
	if e.Charges != nil {
		return e.Charges
	}
	return e.Charge
}

func (d *chargeDoc) toDomain() *domain.RecurringCharge {
	price, _ := d.Price.Float64()
	return &domain.RecurringCharge{
		ID:              d.ID,
		Name:            d.Name,
		Price:           price,
		Status:          d.Status,
		ReturnURL:       d.ReturnURL,
		ConfirmationURL: d.ConfirmationURL,
	}
}

func (c *client) CreateRecurringCharge(ctx context.Context, shop string, accessToken string, charge *domain.RecurringCharge) (*domain.RecurringCharge, error) {
	chargeURL := fmt.Sprintf("https://%s/admin/api/%s/recurring_application_charges.json", shop, apiVersion)

	payload := map[string]interface{}{
		"recurring_application_charge": map[string]interface{}{
			"name":       charge.Name,
			"price":      charge.Price,
			"return_url": charge.ReturnURL,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode charge payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chargeURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create charge request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create recurring charge: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read charge response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to create recurring charge: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var env chargeEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("failed to decode charge response: %w", err)
	}

	doc := env.doc()
	if doc == nil || doc.ConfirmationURL == "" {
		return nil, fmt.Errorf("charge response contained no confirmation_url")
	}

	return doc.toDomain(), nil
}

func (c *client) GetRecurringCharge(ctx context.Context, shop string, accessToken string, chargeID int64) (*domain.RecurringCharge, error) {
	chargeURL := fmt.Sprintf("https://%s/admin/api/%s/recurring_application_charges/%d.json", shop, apiVersion, chargeID)

	_, body, err := c.doGet(ctx, chargeURL, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to look up charge %d: %w", chargeID, err)
	}

	var env chargeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode charge response: %w", err)
	}

	doc := env.doc()
	if doc == nil {
		return nil, fmt.Errorf("charge response contained no recurring charge")
	}

	return doc.toDomain(), nil
}

// Order API

func (c *client) GetOrder(ctx context.Context, shop string, accessToken string, orderID string) (domain.Order, error) {
	orderURL := fmt.Sprintf("https://%s/admin/api/%s/orders/%s.json", shop, apiVersion, url.PathEscape(orderID))

	_, body, err := c.doGet(ctx, orderURL, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order %s: %w", orderID, err)
	}

	var payload struct {
		Order domain.Order `json:"order"`
	}
	if err := decodeJSON(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}
	if payload.Order == nil {
		return nil, fmt.Errorf("order %s not found", orderID)
	}

	return payload.Order, nil
}

func (c *client) ListOrders(ctx context.Context, shop string, accessToken string) ([]domain.Order, error) {
	next := fmt.Sprintf("https://%s/admin/api/%s/orders.json?limit=%d&status=any", shop, apiVersion, ordersPageSize)

	var orders []domain.Order
	pages := 0

	for next != "" {
		if c.retry.MaxPages > 0 && pages >= c.retry.MaxPages {
			return nil, fmt.Errorf("order listing exceeded %d pages for shop %s", c.retry.MaxPages, shop)
		}

		header, body, err := c.doGet(ctx, next, accessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch orders: %w", err)
		}
		pages++
		metrics.OrderPagesFetched.Inc()

		var page struct {
			Orders []domain.Order `json:"orders"`
		}
		if err := decodeJSON(body, &page); err != nil {
			return nil, fmt.Errorf("failed to decode orders response: %w", err)
		}
		orders = append(orders, page.Orders...)

		next = ""
		if l, ok := link.ParseHeader(header)["next"]; ok && l != nil {
			next = l.URI
		}
	}

	c.logger.Debug().
		Str("shop", shop).
		Int("pages", pages).
		Int("orders", len(orders)).
		Msg("Fetched order listing")

	return orders, nil
}

// doGet issues an authenticated GET, retrying only on 429 responses per the
// retry config. The body is read in full so the Link header can be consumed
// alongside the decoded payload.
func (c *client) doGet(ctx context.Context, rawURL string, accessToken string) (http.Header, []byte, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("X-Shopify-Access-Token", accessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, nil, err
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && c.rateLimiter != nil && attempt < c.retry.MaxRetries {
			if err := c.rateLimiter.Wait(ctx, resp, attempt, c.retry); err != nil {
				return nil, nil, err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, nil, fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
		}

		return resp.Header, body, nil
	}
}

// decodeJSON decodes with UseNumber so numeric order fields survive the
// round trip into CSV text without float reformatting.
func decodeJSON(body []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}
