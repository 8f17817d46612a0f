package netutil

import (
	"errors"
	"fmt"
	"net"
)

// ErrNoBindAddr is returned when neither the preferred address nor any
// candidate can be bound.
var ErrNoBindAddr = errors.New("no available bind addresses")

// Listen binds the preferred address, or with autoFallback the first
// candidate that is free. The listener is returned open so the port cannot
// be taken between selection and serving.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	ln, _, err := listenFirst(preferred, candidates, autoFallback)
	return ln, err
}

// SelectBindAddr reports which address Listen would bind without keeping it.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	ln, addr, err := listenFirst(preferred, candidates, autoFallback)
	if err != nil {
		return "", err
	}
	if err := ln.Close(); err != nil {
		return "", fmt.Errorf("release %s: %w", addr, err)
	}
	return addr, nil
}

func listenFirst(preferred string, candidates []string, autoFallback bool) (net.Listener, string, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, preferred, nil
		}
		if !autoFallback {
			return nil, "", fmt.Errorf("preferred bind address in use: %s: %w", preferred, err)
		}
	}

	for _, addr := range candidates {
		if addr == "" || addr == preferred {
			continue
		}
		if ln, err := net.Listen("tcp", addr); err == nil {
			return ln, addr, nil
		}
	}
	return nil, "", ErrNoBindAddr
}
