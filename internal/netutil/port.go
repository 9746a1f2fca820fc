package netutil

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrNoFreePort is returned when every candidate port is taken.
var ErrNoFreePort = errors.New("no available port")

// FindAvailablePort returns the first port in [start, start+attempts) that
// can be listened on at host.
func FindAvailablePort(host string, start, attempts int) (int, error) {
	if attempts <= 0 {
		attempts = 1
	}
	for port := start; port < start+attempts; port++ {
		if port <= 0 || port > 65535 {
			continue
		}
		ok, err := IsAddrAvailable(net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			return 0, err
		}
		if ok {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w in %d-%d on %s", ErrNoFreePort, start, start+attempts-1, host)
}

// IsAddrAvailable returns true when an address can be listened on.
func IsAddrAvailable(addr string) (bool, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false, nil
	}
	if closeErr := ln.Close(); closeErr != nil {
		return false, closeErr
	}
	return true, nil
}
