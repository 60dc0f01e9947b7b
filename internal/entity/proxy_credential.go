package entity

import (
	"net"
	"strconv"
)

// ProxyCredential is one egress identity. Values are never mutated after fetch.
type ProxyCredential struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Addr returns host:port.
func (p ProxyCredential) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}
