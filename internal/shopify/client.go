package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/commercebridge/reconciler/internal/domain"
	"github.com/commercebridge/reconciler/internal/ratelimit"
	"github.com/go-resty/resty/v2"
)

const (
	defaultTimeout = 10 * time.Second
	apiVersion     = "2024-01"
	platformName   = "shopify"

	// Tokens are refreshed five minutes before Shopify expires them so an
	// in-flight call never races the expiry.
	tokenExpiryBuffer = 5 * time.Minute
)

// OrderDirectory looks up commerce orders by business reference and moves
// them to the paid state.
type OrderDirectory interface {
	FindOrderByReference(ctx context.Context, reference string) (*domain.Order, error)
	MarkOrderPaid(ctx context.Context, orderID string) error
}

var _ OrderDirectory = (*Client)(nil)

// Client talks to the Shopify Admin GraphQL API using the client-credentials
// OAuth grant. An optional rate limiter bounds calls against the Admin API
// budget; a nil limiter disables the bound.
type Client struct {
	client       *resty.Client
	shopURL      string
	clientID     string
	clientSecret string
	limiter      ratelimit.RateLimiter

	mu             sync.Mutex
	accessToken    string
	tokenExpiresAt time.Time
	now            func() time.Time
}

func NewClient(shopURL string, clientID string, clientSecret string, limiter ratelimit.RateLimiter) (*Client, error) {
	client := resty.New()
	client.SetTimeout(defaultTimeout)
	client.SetRetryCount(0)

	return NewClientWithClient(shopURL, clientID, clientSecret, limiter, client)
}

func NewClientWithClient(
	shopURL string,
	clientID string,
	clientSecret string,
	limiter ratelimit.RateLimiter,
	client *resty.Client,
) (*Client, error) {
	trimmedShopURL := strings.TrimRight(strings.TrimSpace(shopURL), "/")
	if trimmedShopURL == "" {
		return nil, fmt.Errorf("shopify shop url is required")
	}
	if _, err := url.ParseRequestURI(trimmedShopURL); err != nil {
		return nil, fmt.Errorf("invalid shopify shop url: %w", err)
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("shopify client id is required")
	}
	if strings.TrimSpace(clientSecret) == "" {
		return nil, fmt.Errorf("shopify client secret is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTimeout)
	}
	client.SetRetryCount(0)

	return &Client{
		client:       client,
		shopURL:      trimmedShopURL,
		clientID:     strings.TrimSpace(clientID),
		clientSecret: strings.TrimSpace(clientSecret),
		limiter:      limiter,
		now:          time.Now,
	}, nil
}

const findOrderQuery = `query FindOrder($first: Int!, $query: String!) {
  orders(first: $first, query: $query) {
    edges {
      node {
        id
        name
        email
        displayFinancialStatus
        totalPriceSet {
          shopMoney {
            amount
            currencyCode
          }
        }
      }
    }
  }
}`

const markOrderPaidMutation = `mutation OrderMarkAsPaid($input: OrderMarkAsPaidInput!) {
  orderMarkAsPaid(input: $input) {
    order {
      id
      displayFinancialStatus
    }
    userErrors {
      field
      message
    }
  }
}`

type orderNode struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	Email                  string `json:"email"`
	DisplayFinancialStatus string `json:"displayFinancialStatus"`
	TotalPriceSet          struct {
		ShopMoney struct {
			Amount       string `json:"amount"`
			CurrencyCode string `json:"currencyCode"`
		} `json:"shopMoney"`
	} `json:"totalPriceSet"`
}

type ordersData struct {
	Orders struct {
		Edges []struct {
			Node orderNode `json:"node"`
		} `json:"edges"`
	} `json:"orders"`
}

type markPaidData struct {
	OrderMarkAsPaid struct {
		Order *struct {
			ID                     string `json:"id"`
			DisplayFinancialStatus string `json:"displayFinancialStatus"`
		} `json:"order"`
		UserErrors []struct {
			Field   []string `json:"field"`
			Message string   `json:"message"`
		} `json:"userErrors"`
	} `json:"orderMarkAsPaid"`
}

// FindOrderByReference resolves the single best match for an order number
// reference, e.g. "1001" matching the order named "#1001". Returns
// domain.ErrNotFound when no order matches.
func (c *Client) FindOrderByReference(ctx context.Context, reference string) (*domain.Order, error) {
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: order reference is required", domain.ErrValidation)
	}

	var data ordersData
	err := c.graphql(ctx, findOrderQuery, map[string]any{
		"first": 1,
		"query": fmt.Sprintf("name:#%s", trimmed),
	}, &data)
	if err != nil {
		return nil, err
	}

	edges := data.Orders.Edges
	if len(edges) == 0 {
		return nil, domain.ErrNotFound
	}

	order := orderFromNode(edges[0].Node)
	return &order, nil
}

// MarkOrderPaid transitions the order's financial status to paid. Shopify
// validation errors and a missing order payload both fail the call.
func (c *Client) MarkOrderPaid(ctx context.Context, orderID string) error {
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}

	var data markPaidData
	err := c.graphql(ctx, markOrderPaidMutation, map[string]any{
		"input": map[string]any{"id": trimmed},
	}, &data)
	if err != nil {
		return err
	}

	if userErrors := data.OrderMarkAsPaid.UserErrors; len(userErrors) > 0 {
		messages := make([]string, 0, len(userErrors))
		for _, userErr := range userErrors {
			messages = append(messages, userErr.Message)
		}
		return fmt.Errorf("shopify rejected mark as paid for order %s: %s", trimmed, strings.Join(messages, ", "))
	}
	if data.OrderMarkAsPaid.Order == nil {
		return fmt.Errorf("shopify returned no order payload for mark as paid on %s", trimmed)
	}

	return nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) graphql(ctx context.Context, query string, variables map[string]any, out any) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("shopify client is not initialized")
	}

	token, err := c.getAccessToken(ctx)
	if err != nil {
		return err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, platformName); err != nil {
			return fmt.Errorf("shopify rate limit wait: %w", err)
		}
	}

	var parsed graphQLResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Shopify-Access-Token", token).
		SetBody(graphQLRequest{Query: query, Variables: variables}).
		SetResult(&parsed).
		Post(fmt.Sprintf("%s/admin/api/%s/graphql.json", c.shopURL, apiVersion))
	if err != nil {
		return &APIError{
			Message: "shopify request failed",
			Cause:   err,
		}
	}
	if response.IsError() {
		return &APIError{
			StatusCode: response.StatusCode(),
			Message:    strings.TrimSpace(response.String()),
		}
	}

	if len(parsed.Errors) > 0 {
		messages := make([]string, 0, len(parsed.Errors))
		for _, gqlErr := range parsed.Errors {
			messages = append(messages, gqlErr.Message)
		}
		return &APIError{
			StatusCode: response.StatusCode(),
			Message:    "graphql errors: " + strings.Join(messages, ", "),
		}
	}

	if out != nil && len(parsed.Data) > 0 {
		if err := json.Unmarshal(parsed.Data, out); err != nil {
			return fmt.Errorf("failed to decode shopify response: %w", err)
		}
	}

	return nil
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiresAt) {
		return c.accessToken, nil
	}

	var parsed accessTokenResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"client_id":     c.clientID,
			"client_secret": c.clientSecret,
			"grant_type":    "client_credentials",
		}).
		SetResult(&parsed).
		Post(c.shopURL + "/admin/oauth/access_token")
	if err != nil {
		return "", &APIError{
			Message: "shopify token request failed",
			Cause:   err,
		}
	}
	if response.IsError() {
		return "", &APIError{
			StatusCode: response.StatusCode(),
			Message:    strings.TrimSpace(response.String()),
		}
	}
	if parsed.AccessToken == "" {
		return "", &APIError{
			StatusCode: response.StatusCode(),
			Message:    "token response contained no access token",
		}
	}

	c.accessToken = parsed.AccessToken
	c.tokenExpiresAt = c.now().Add(time.Duration(parsed.ExpiresIn)*time.Second - tokenExpiryBuffer)

	return c.accessToken, nil
}

func orderFromNode(node orderNode) domain.Order {
	return domain.Order{
		ID:              node.ID,
		Name:            node.Name,
		Email:           node.Email,
		FinancialStatus: domain.OrderFinancialStatus(node.DisplayFinancialStatus),
		TotalAmount:     node.TotalPriceSet.ShopMoney.Amount,
		Currency:        node.TotalPriceSet.ShopMoney.CurrencyCode,
	}
}
