package selector

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Candidate identifies a remote server that may become the swap partner.
type Candidate struct {
	// Address is the host name or IP address of the server.
	Address string

	// Port is the server's port, zero if the default HTTPS port is used.
	Port uint16
}

// String returns host or host:port.
func (c Candidate) String() string {
	if c.Port == 0 {
		return c.Address
	}

	return net.JoinHostPort(c.Address, strconv.Itoa(int(c.Port)))
}

// ParseCandidate parses host[:port].
func ParseCandidate(s string) (Candidate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Candidate{}, fmt.Errorf("empty candidate address")
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port given.
		return Candidate{Address: strings.Trim(s, "[]")}, nil
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return Candidate{}, fmt.Errorf("invalid port in %q", s)
	}

	if host == "" {
		return Candidate{}, fmt.Errorf("missing host in %q", s)
	}

	return Candidate{Address: host, Port: uint16(port)}, nil
}

// ParseCluster parses a list of host[:port] entries.
func ParseCluster(entries []string) ([]Candidate, error) {
	cluster := make([]Candidate, 0, len(entries))
	for _, entry := range entries {
		candidate, err := ParseCandidate(entry)
		if err != nil {
			return nil, err
		}
		cluster = append(cluster, candidate)
	}

	return cluster, nil
}
