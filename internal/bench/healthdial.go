package bench

import (
	"context"
	"net"
	"net/url"
	"time"
)

// tcpDial is the raw-TCP-connect fallback of spec.md §4.6's health check,
// used when every HTTP probe path failed to even get a response.
func tcpDial(ctx context.Context, baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
