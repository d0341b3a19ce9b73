package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"finboard/internal/core"
)

const (
	profilePath      = "/auth/profile/"
	loginPath        = "/auth/login/"
	walletsPath      = "/wallets/wallets/"
	transactionsPath = "/transactions/transactions/"
)

// Tokens is the token pair issued by the login endpoint.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Profile fetches the profile of the authenticated user.
func (c *Client) Profile(ctx context.Context) (*core.UserProfile, error) {
	var profile core.UserProfile
	if err := c.doRequest(ctx, http.MethodGet, profilePath, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Wallets lists the wallets of the authenticated user.
func (c *Client) Wallets(ctx context.Context) ([]core.Wallet, error) {
	raw, err := c.send(ctx, http.MethodGet, walletsPath, nil)
	if err != nil {
		return nil, err
	}
	wallets, err := decodeList[core.Wallet](raw)
	if err != nil {
		return nil, fmt.Errorf("decode wallets: %w", err)
	}
	return wallets, nil
}

// Transactions lists the transactions of the authenticated user.
func (c *Client) Transactions(ctx context.Context) ([]core.Transaction, error) {
	raw, err := c.send(ctx, http.MethodGet, transactionsPath, nil)
	if err != nil {
		return nil, err
	}
	txs, err := decodeList[core.Transaction](raw)
	if err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	return txs, nil
}

// ObtainTokens exchanges credentials for an access/refresh token pair.
func (c *Client) ObtainTokens(ctx context.Context, email, password string) (Tokens, error) {
	var tokens Tokens
	err := c.doRequest(ctx, http.MethodPost, loginPath, loginRequest{Email: email, Password: password}, &tokens)
	if err != nil {
		return Tokens{}, err
	}
	if tokens.Access == "" || tokens.Refresh == "" {
		return Tokens{}, fmt.Errorf("login response is missing tokens")
	}
	return tokens, nil
}

// CreateWallet creates a wallet and returns it as stored by the API.
func (c *Client) CreateWallet(ctx context.Context, w core.NewWallet) (*core.Wallet, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	var created core.Wallet
	if err := c.doRequest(ctx, http.MethodPost, walletsPath, w, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateTransaction records a transaction and returns it as stored by the API.
func (c *Client) CreateTransaction(ctx context.Context, t core.NewTransaction) (*core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	var created core.Transaction
	if err := c.doRequest(ctx, http.MethodPost, transactionsPath, t, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// decodeList accepts either a bare JSON array or a paginated
// {"results": [...]} envelope.
func decodeList[T any](raw []byte) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		if items == nil {
			items = []T{}
		}
		return items, nil
	}

	var envelope struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	if envelope.Results == nil {
		return []T{}, nil
	}
	return envelope.Results, nil
}
