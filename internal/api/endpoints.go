package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jask/finsense/internal/ledger"
)

// LoginResponse is the body of a successful POST /auth/login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserName    string `json:"user_name"`
}

// SignupResponse is the body of a successful POST /auth/signup.
type SignupResponse struct {
	AccessToken string `json:"access_token"`
}

// Login exchanges credentials for an access token. A rejected login returns
// an *APIError whose Detail is the server discriminant.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	resp, err := c.Fetch(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return LoginResponse{}, err
	}
	if err := resp.Err(); err != nil {
		return LoginResponse{}, err
	}
	var out LoginResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return LoginResponse{}, err
	}
	return out, nil
}

// Signup creates an account and returns its access token.
func (c *Client) Signup(ctx context.Context, name, email, password string) (SignupResponse, error) {
	resp, err := c.Fetch(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/signup",
		Body:   map[string]string{"name": name, "email": email, "password": password},
	})
	if err != nil {
		return SignupResponse{}, err
	}
	if err := resp.Err(); err != nil {
		return SignupResponse{}, err
	}
	var out SignupResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return SignupResponse{}, err
	}
	return out, nil
}

// ListTransactions fetches the collection, narrowed by type unless f is all.
func (c *Client) ListTransactions(ctx context.Context, f ledger.Filter) ([]ledger.Transaction, error) {
	req := Request{Method: http.MethodGet, Path: "/transactions"}
	if q := f.Query(); q != "" {
		req.Query = url.Values{"type": {q}}
	}
	resp, err := c.AuthFetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var out []ledger.Transaction
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []ledger.Transaction{}
	}
	var outside, undated int
	for _, t := range out {
		if !f.Matches(t) {
			outside++
		}
		if t.Date.IsZero() {
			undated++
		}
	}
	if outside > 0 {
		c.logger.Warn("rows outside requested filter", "filter", f, "count", outside)
	}
	if undated > 0 {
		c.logger.Warn("rows with unreadable date", "count", undated)
	}
	return out, nil
}

// DeleteTransaction removes one transaction on the server.
func (c *Client) DeleteTransaction(ctx context.Context, id ledger.ID) error {
	if id == "" {
		return fmt.Errorf("delete transaction: empty id")
	}
	resp, err := c.AuthFetch(ctx, Request{
		Method: http.MethodDelete,
		Path:   "/transactions/" + url.PathEscape(id.String()),
	})
	if err != nil {
		return err
	}
	return resp.Err()
}

// ExportTransactions downloads the CSV for the inclusive month range.
func (c *Client) ExportTransactions(ctx context.Context, fromMonth, toMonth string) ([]byte, error) {
	resp, err := c.AuthFetch(ctx, Request{
		Method: http.MethodGet,
		Path:   "/export/transactions",
		Query:  url.Values{"from_month": {fromMonth}, "to_month": {toMonth}},
	})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Bytes(), nil
}
