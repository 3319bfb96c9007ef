package remote

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultSSHPort is used when a host string names no port.
const DefaultSSHPort = 22

// HostString is a parsed "[user@]host[:port]" target.
type HostString struct {
	User string
	Host string
	Port int
}

// ParseHostString parses "[user@]host[:port]". IPv6 hosts with a port must
// be bracketed. Port is 0 when not given.
func ParseHostString(s string) (HostString, error) {
	var hs HostString
	s = strings.TrimSpace(s)
	if s == "" {
		return hs, fmt.Errorf("empty host string")
	}

	if i := strings.LastIndex(s, "@"); i >= 0 {
		hs.User = s[:i]
		s = s[i+1:]
		if hs.User == "" {
			return hs, fmt.Errorf("empty user in host string")
		}
	}

	host := s
	if strings.HasPrefix(s, "[") || strings.Count(s, ":") == 1 {
		h, p, err := net.SplitHostPort(s)
		if err != nil {
			return hs, fmt.Errorf("parsing host string %q: %w", s, err)
		}
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return hs, fmt.Errorf("invalid port %q", p)
		}
		host = h
		hs.Port = port
	}
	if host == "" {
		return hs, fmt.Errorf("empty host in host string")
	}
	hs.Host = host
	return hs, nil
}

// Address returns host:port for dialling, using DefaultSSHPort when unset.
func (h HostString) Address() string {
	port := h.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(h.Host, strconv.Itoa(port))
}

// String renders the host string in its canonical form.
func (h HostString) String() string {
	s := h.Host
	if h.Port != 0 {
		s = net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
	}
	if h.User != "" {
		s = h.User + "@" + s
	}
	return s
}
