package rajaongkir

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
	"time"

	pkgerrors "github.com/angelmondragon/marketplace-core/pkg/errors"
)

const (
	defaultBaseURL              = "https://pro.rajaongkir.com/api"
	defaultTimeout              = 10 * time.Second
	errorBodyReadLimit    int64 = 1024
	responseBodyReadLimit int64 = 1 << 20
)

var errAPIKeyRequired = errors.New("rajaongkir api key is required")

// Client calls the RajaOngkir cost API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}
	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// CostRequest asks for every service of the listed couriers between two cities.
type CostRequest struct {
	Origin      string
	Destination string
	WeightGrams int
	Couriers    []string
}

// ServiceCost is one priced courier service.
type ServiceCost struct {
	Courier     string
	Service     string
	Description string
	Cost        int64
	ETD         string
}

// Cost returns the priced services for req, flattened across couriers.
func (c *Client) Cost(ctx context.Context, req CostRequest) ([]ServiceCost, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "shipping client not configured")
	}
	if strings.TrimSpace(req.Origin) == "" || strings.TrimSpace(req.Destination) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "origin and destination are required")
	}
	if len(req.Couriers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one courier is required")
	}

	form := url.Values{}
	form.Set("origin", req.Origin)
	form.Set("originType", "city")
	form.Set("destination", req.Destination)
	form.Set("destinationType", "city")
	form.Set("weight", strconv.Itoa(req.WeightGrams))
	form.Set("courier", strings.Join(req.Couriers, ":"))

	endpoint := strings.TrimRight(c.baseURL, "/") + "/cost"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build cost request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute cost request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "cost request failed")
	}

	var apiResp struct {
		RajaOngkir struct {
			Status struct {
				Code        int    `json:"code"`
				Description string `json:"description"`
			} `json:"status"`
			Results []struct {
				Code  string `json:"code"`
				Costs []struct {
					Service     string `json:"service"`
					Description string `json:"description"`
					Cost        []struct {
						Value int64  `json:"value"`
						ETD   string `json:"etd"`
					} `json:"cost"`
				} `json:"costs"`
			} `json:"results"`
		} `json:"rajaongkir"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyReadLimit)).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode cost response")
	}
	if code := apiResp.RajaOngkir.Status.Code; code != 0 && code != http.StatusOK {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cost request rejected: "+apiResp.RajaOngkir.Status.Description)
	}

	var out []ServiceCost
	for _, result := range apiResp.RajaOngkir.Results {
		for _, svc := range result.Costs {
			if len(svc.Cost) == 0 {
				continue
			}
			out = append(out, ServiceCost{
				Courier:     strings.ToLower(result.Code),
				Service:     svc.Service,
				Description: svc.Description,
				Cost:        svc.Cost[0].Value,
				ETD:         svc.Cost[0].ETD,
			})
		}
	}
	return out, nil
}
