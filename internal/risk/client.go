package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/models"
)

type riskResponse struct {
	Risk *string `json:"risk"`
}

// Client asks the remote classifier for the driver's current risk label
type Client struct {
	client *resty.Client
	logger *zap.Logger
}

// NewClient creates a classifier client for baseURL
func NewClient(httpClient *http.Client, baseURL string, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidURL, baseURL)
	}

	return &Client{
		client: resty.NewWithClient(httpClient).
			SetBaseURL(baseURL).
			SetHeader("Accept", "application/json"),
		logger: logger.Named("risk_client"),
	}, nil
}

// Fetch returns the label reported for identity. Errors wrap ErrTransport
// or ErrParse.
func (c *Client) Fetch(ctx context.Context, identity models.Identity) (string, error) {
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("short_user_id", identity.ShortUserID)
	if identity.DriverID != "" {
		req.SetQueryParam("driver_id", identity.DriverID)
	}

	resp, err := req.Get("/getRisk")
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTransport, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: status %d", models.ErrTransport, resp.StatusCode())
	}

	var body riskResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrParse, err)
	}
	if body.Risk == nil {
		return "", fmt.Errorf("%w: missing risk field", models.ErrParse)
	}

	c.logger.Debug("Risk fetched", zap.String("risk", *body.Risk))
	return *body.Risk, nil
}
