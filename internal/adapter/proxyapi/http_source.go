package proxyapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/user/photo-resolver/internal/entity"
	"github.com/user/photo-resolver/internal/repository"
)

const maxPageBytes = 4 * 1024 * 1024

type listResponse struct {
	Count   int           `json:"count"`
	Next    *string       `json:"next"`
	Results []proxyRecord `json:"results"`
}

type proxyRecord struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	ProxyAddress string `json:"proxy_address"`
	Port         int    `json:"port"`
	Valid        *bool  `json:"valid"`
}

// HTTPSource lists credentials from a paginated proxy provider API:
// GET {base}?mode=direct&page=N&page_size=M with "Authorization: Token ...".
type HTTPSource struct {
	baseURL  string
	token    string
	pageSize int
	client   *http.Client
}

func NewHTTPSource(baseURL, token string, pageSize int, timeout time.Duration) *HTTPSource {
	if pageSize < 1 {
		pageSize = 100
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSource{
		baseURL:  baseURL,
		token:    token,
		pageSize: pageSize,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) ListCredentials(ctx context.Context, page int) (*repository.CredentialPage, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy api url: %w", err)
	}
	q := u.Query()
	q.Set("mode", "direct")
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(s.pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Token "+s.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list proxies page %d: %w", page, err)
	}
	defer resp.Body.Close()

	// Past the last page some providers answer 404 instead of an empty list.
	if resp.StatusCode == http.StatusNotFound && page > 1 {
		return &repository.CredentialPage{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))
		return nil, fmt.Errorf("list proxies page %d: unexpected status %d", page, resp.StatusCode)
	}

	var body listResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode proxies page %d: %w", page, err)
	}

	out := &repository.CredentialPage{HasNext: body.Next != nil && *body.Next != ""}
	for _, r := range body.Results {
		if r.Valid != nil && !*r.Valid {
			continue
		}
		if r.ProxyAddress == "" || r.Port <= 0 {
			continue
		}
		out.Credentials = append(out.Credentials, entity.ProxyCredential{
			Host:     r.ProxyAddress,
			Port:     r.Port,
			Username: r.Username,
			Password: r.Password,
		})
	}
	return out, nil
}
