// Package httpfetch queries the remote entity service over HTTP.
package httpfetch

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

	"github.com/google/uuid"

	"github.com/mohammed-shakir/hexscan/internal/core/httpclient"
	"github.com/mohammed-shakir/hexscan/internal/core/model"
	"github.com/mohammed-shakir/hexscan/internal/fetch"
)

const (
	maxBody       = 8 << 20
	sessionHeader = "X-Session-ID"
)

type Config struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// Factory opens one remote session per scan.
type Factory struct {
	base   *url.URL
	token  string
	client *http.Client
}

func New(cfg Config) (*Factory, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid remote url %q", cfg.BaseURL)
	}
	c := cfg.Client
	if c == nil {
		c = httpclient.NewOutbound(0)
	}
	return &Factory{base: u, token: cfg.Token, client: c}, nil
}

// Source identifies the remote for cache keys.
func (f *Factory) Source() string { return f.base.String() }

func (f *Factory) Open(ctx context.Context) (fetch.Fetcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.token == "" {
		return nil, &fetch.AuthError{Err: errors.New("no remote credentials configured")}
	}
	return &Session{f: f, id: uuid.NewString()}, nil
}

// Session is a single authenticated handle. Not safe for concurrent use.
type Session struct {
	f  *Factory
	id string
}

func (s *Session) ID() string { return s.id }

type response struct {
	Entities []model.Entity `json:"entities"`
}

func (s *Session) Fetch(ctx context.Context, at model.Coordinate) ([]model.Entity, error) {
	u := *s.f.base
	u.Path += "/entities"
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(at.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(at.Lon, 'f', -1, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.f.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(sessionHeader, s.id)

	resp, err := s.f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &fetch.NetworkError{Op: "GET", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &fetch.AuthError{Err: fmt.Errorf("remote rejected credentials: %s", resp.Status)}
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &fetch.NetworkError{Op: "GET", Err: fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))}
	}

	var body response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body); err != nil {
		return nil, &fetch.NetworkError{Op: "decode", Err: err}
	}
	return body.Entities, nil
}
