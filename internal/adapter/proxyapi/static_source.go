package proxyapi

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/user/photo-resolver/internal/entity"
	"github.com/user/photo-resolver/internal/repository"
)

// StaticSource serves a fixed credential list as a single page.
type StaticSource struct {
	credentials []entity.ProxyCredential
}

// ParseStaticList parses "user:pass@host:port,host:port,..." entries.
// Credentials are optional per entry.
func ParseStaticList(list string) (*StaticSource, error) {
	var creds []entity.ProxyCredential
	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		c, err := parseEntry(raw)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return &StaticSource{credentials: creds}, nil
}

func parseEntry(raw string) (entity.ProxyCredential, error) {
	u, err := url.Parse("http://" + strings.TrimPrefix(raw, "http://"))
	if err != nil {
		return entity.ProxyCredential{}, fmt.Errorf("proxy entry %q: %w", raw, err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return entity.ProxyCredential{}, fmt.Errorf("proxy entry %q: %w", raw, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 || host == "" {
		return entity.ProxyCredential{}, fmt.Errorf("proxy entry %q: invalid host or port", raw)
	}

	c := entity.ProxyCredential{Host: host, Port: port}
	if u.User != nil {
		c.Username = u.User.Username()
		c.Password, _ = u.User.Password()
	}
	return c, nil
}

func (s *StaticSource) ListCredentials(_ context.Context, page int) (*repository.CredentialPage, error) {
	if page != 1 {
		return &repository.CredentialPage{}, nil
	}
	return &repository.CredentialPage{Credentials: append([]entity.ProxyCredential(nil), s.credentials...)}, nil
}
