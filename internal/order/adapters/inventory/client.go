// Package inventory is the adapter for the catalog service's HTTP API.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/lymian/kirbook-pedido-rest/internal/order/app"
)

const defaultTimeout = 5 * time.Second

// Client implements app.InventoryGateway against the catalog's JSON API:
//
//	GET /items/{id}
//	PUT /items/{id}/decrement-stock/{quantity}
//
// Status codes are translated into the gateway error classes; everything
// unexpected (including timeouts) is Unreachable.
type Client struct {
	hc      *http.Client
	baseURL string
}

var _ app.InventoryGateway = (*Client)(nil)

func NewClient(baseURL string) *Client {
	return &Client{
		hc:      &http.Client{Timeout: defaultTimeout},
		baseURL: baseURL,
	}
}

type itemDTO struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Synopsis        string  `json:"synopsis"`
	Author          string  `json:"author"`
	Category        string  `json:"category"`
	PublishDate     string  `json:"publishDate"`
	Price           float64 `json:"price"`
	DiscountPercent float64 `json:"discountPercent"`
	Stock           int     `json:"stock"`
	Active          bool    `json:"active"`
}

func (c *Client) GetItem(ctx context.Context, itemID string) (app.ItemSnapshot, error) {
	u := fmt.Sprintf("%s/items/%s", c.baseURL, url.PathEscape(itemID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return app.ItemSnapshot{}, fmt.Errorf("inventory: build request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return app.ItemSnapshot{}, fmt.Errorf("%w: %v", app.ErrInventoryUnreachable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return app.ItemSnapshot{}, fmt.Errorf("%w: %s", app.ErrItemNotFound, itemID)
	default:
		return app.ItemSnapshot{}, fmt.Errorf("%w: get item %s: status %d", app.ErrInventoryUnreachable, itemID, resp.StatusCode)
	}

	var dto itemDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return app.ItemSnapshot{}, fmt.Errorf("%w: decode item %s: %v", app.ErrInventoryUnreachable, itemID, err)
	}
	return app.ItemSnapshot{
		ID:              dto.ID,
		Title:           dto.Title,
		Synopsis:        dto.Synopsis,
		Author:          dto.Author,
		Category:        dto.Category,
		PublishDate:     dto.PublishDate,
		UnitPrice:       dto.Price,
		DiscountPercent: dto.DiscountPercent,
		Stock:           dto.Stock,
		Active:          dto.Active,
	}, nil
}

// LookupItem is the display path. On the raw client it is just a fresh read;
// wrap with NewCachedClient to serve it from redis.
func (c *Client) LookupItem(ctx context.Context, itemID string) (app.ItemSnapshot, error) {
	return c.GetItem(ctx, itemID)
}

// DecrementStock deducts quantity from one item's stock. Atomic per item at
// the remote; the caller owns cross-line ordering.
func (c *Client) DecrementStock(ctx context.Context, itemID string, quantity int) error {
	u := fmt.Sprintf("%s/items/%s/decrement-stock/%d", c.baseURL, url.PathEscape(itemID), quantity)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, nil)
	if err != nil {
		return fmt.Errorf("inventory: build request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", app.ErrInventoryUnreachable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", app.ErrItemNotFound, itemID)
	case http.StatusConflict:
		return fmt.Errorf("%w: item %s", app.ErrInsufficientStock, itemID)
	default:
		return fmt.Errorf("%w: decrement %s: status %d", app.ErrInventoryUnreachable, itemID, resp.StatusCode)
	}
}
