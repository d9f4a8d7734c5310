package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/portal-pricing/internal/obs"
	"github.com/noah-isme/portal-pricing/internal/pricing"
	"github.com/noah-isme/portal-pricing/internal/resilience"
)

var (
	// ErrNotFound is returned when the portal API has no such resource.
	ErrNotFound = errors.New("portal: not found")
	// ErrUpstream wraps every other portal API failure.
	ErrUpstream = errors.New("portal: upstream error")
)

// Application is an event application with its attendees and their products.
type Application struct {
	ID        int                `json:"id"`
	GroupID   *int               `json:"group_id,omitempty"`
	Attendees []pricing.Attendee `json:"attendees"`
}

type groupPayload struct {
	ID                 int             `json:"id"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
}

// Client reads applications and discounts from the portal API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    resilience.HTTPClient
}

// Application loads an application with nested attendee products.
func (c *Client) Application(ctx context.Context, id int) (Application, error) {
	var app Application
	if err := c.getJSON(ctx, "application", "applications/"+strconv.Itoa(id), nil, &app); err != nil {
		return Application{}, err
	}
	for i := range app.Attendees {
		if app.Attendees[i].ApplicationID == 0 {
			app.Attendees[i].ApplicationID = app.ID
		}
	}
	return app, nil
}

// ApplicationDiscount loads the individual discount of an application. An application
// without a discount yields the zero discount.
func (c *Client) ApplicationDiscount(ctx context.Context, applicationID int) (pricing.Discount, error) {
	var d pricing.Discount
	query := url.Values{"application_id": {strconv.Itoa(applicationID)}}
	err := c.getJSON(ctx, "discount", "account-discounts", query, &d)
	if errors.Is(err, ErrNotFound) {
		return pricing.Discount{}, nil
	}
	if err != nil {
		return pricing.Discount{}, err
	}
	return d, nil
}

// GroupDiscountPercent loads the discount percentage of a group.
func (c *Client) GroupDiscountPercent(ctx context.Context, groupID int) (decimal.Decimal, error) {
	var g groupPayload
	if err := c.getJSON(ctx, "group", "groups/"+strconv.Itoa(groupID), nil, &g); err != nil {
		return decimal.Zero, err
	}
	return g.DiscountPercentage, nil
}

// Available reports whether calls are currently allowed through the circuit breaker.
func (c *Client) Available() error {
	if c.HTTP.Breaker != nil && c.HTTP.Breaker.State() == resilience.Open {
		return resilience.ErrOpenCircuit
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, dst any) error {
	target := strings.TrimRight(c.BaseURL, "/") + "/" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		obs.IncCounter(obs.PortalRequestTotal, endpoint, "error")
		return fmt.Errorf("%w: %s: %w", ErrUpstream, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		obs.IncCounter(obs.PortalRequestTotal, endpoint, "not_found")
		return fmt.Errorf("%w: %s", ErrNotFound, endpoint)
	case resp.StatusCode >= 300:
		obs.IncCounter(obs.PortalRequestTotal, endpoint, "error")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s responded %d: %s", ErrUpstream, endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		obs.IncCounter(obs.PortalRequestTotal, endpoint, "decode_error")
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, endpoint, err)
	}
	obs.IncCounter(obs.PortalRequestTotal, endpoint, "ok")
	return nil
}
