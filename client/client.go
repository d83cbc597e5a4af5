// Package client is a typed HTTP client for the customer API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"crm-backend/models"
	"crm-backend/services"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
	// Fields holds per-field validation messages (400 only).
	Fields map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("api error %d: %s %v", e.Status, e.Message, e.Fields)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return statusOf(err) == fiber.StatusNotFound
}

// IsConflict reports whether err is a 409 from the API (duplicate email, idempotency reuse).
func IsConflict(err error) bool {
	return statusOf(err) == fiber.StatusConflict
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type Option func(*Client)

// WithToken sends "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client talks to the customer endpoints under baseURL (including any API prefix).
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *fiber.Client
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
		http:    &fiber.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns all customers, newest first.
func (c *Client) List(ctx context.Context) ([]models.Customer, error) {
	var out []models.Customer
	err := c.do(ctx, c.http.Get(c.baseURL+"/customers"), &out)
	return out, err
}

// Search returns customers matching query.
func (c *Client) Search(ctx context.Context, query string) ([]models.Customer, error) {
	var out []models.Customer
	a := c.http.Get(c.baseURL + "/customers").QueryString("q=" + url.QueryEscape(query))
	err := c.do(ctx, a, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id string) (*models.Customer, error) {
	var out models.Customer
	if err := c.do(ctx, c.http.Get(c.customerURL(id)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Create(ctx context.Context, in services.CreateCustomerInput) (*models.Customer, error) {
	var out models.Customer
	if err := c.do(ctx, c.http.Post(c.baseURL+"/customers").JSON(in), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Update(ctx context.Context, id string, in services.UpdateCustomerInput) (*models.Customer, error) {
	var out models.Customer
	if err := c.do(ctx, c.http.Put(c.customerURL(id)).JSON(in), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes the customer and returns the id the server confirmed.
func (c *Client) Delete(ctx context.Context, id string) (string, error) {
	var out struct {
		Message string `json:"message"`
		ID      string `json:"id"`
	}
	if err := c.do(ctx, c.http.Delete(c.customerURL(id)), &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) customerURL(id string) string {
	return c.baseURL + "/customers/" + url.PathEscape(id)
}

// do sends the request and decodes a 2xx JSON body into out.
// The agent is released by Bytes.
func (c *Client) do(ctx context.Context, a *fiber.Agent, out any) error {
	if err := ctx.Err(); err != nil {
		fiber.ReleaseAgent(a)
		return err
	}

	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	a.Timeout(timeout)
	a.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if c.token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}

	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return fmt.Errorf("build request: %w", err)
	}
	status, body, errs := a.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("request failed: %w", errors.Join(errs...))
	}

	if status < 200 || status > 299 {
		return decodeError(status, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	var payload struct {
		Message string            `json:"message"`
		Errors  map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Message = payload.Message
		apiErr.Fields = payload.Errors
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
