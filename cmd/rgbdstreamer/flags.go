package main

import (
	"net"
	"strconv"
)

// splitHostPort parses host:port, reporting false for anything else.
func splitHostPort(s string) (string, int, bool) {
	host, portText, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, false
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, false
	}
	return host, port, true
}
