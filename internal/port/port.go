// Package port picks a free local TCP port for the UI server.
package port

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"time"
)

// Default port range, matching the range the viewer has always used.
const (
	DefaultMin = 30000
	DefaultMax = 60000
)

// DefaultAttempts bounds the number of ports probed before giving up.
const DefaultAttempts = 100

// ErrNoFreePort is returned when every probed port accepted a connection.
var ErrNoFreePort = errors.New("no free port found")

// Finder picks random ports in [Min, Max] and probes them by dialing.
// A port is considered free when nothing accepts a connection on it.
// The check is best effort: another process may bind the port between
// the probe and the caller's own listen.
type Finder struct {
	Host     string
	Min      int
	Max      int
	Attempts int
	Timeout  time.Duration

	// Intn is the random source; nil uses math/rand/v2.
	Intn func(n int) int
	// Dial is the probe; nil uses a net.Dialer.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Find returns a free port in [min, max] on the loopback interface.
func Find(ctx context.Context, min, max int) (int, error) {
	f := &Finder{Min: min, Max: max}
	return f.Find(ctx)
}

// Find probes random ports until one is free.
func (f *Finder) Find(ctx context.Context) (int, error) {
	lo, hi := f.Min, f.Max
	if lo <= 0 {
		lo = DefaultMin
	}
	if hi <= 0 {
		hi = DefaultMax
	}
	if lo > hi || hi > 65535 {
		return 0, fmt.Errorf("invalid port range %d-%d", lo, hi)
	}
	attempts := f.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	host := f.Host
	if host == "" {
		host = "127.0.0.1"
	}
	intn := f.Intn
	if intn == nil {
		intn = rand.IntN
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	dial := f.Dial
	if dial == nil {
		d := &net.Dialer{Timeout: timeout}
		dial = d.DialContext
	}

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		port := lo + intn(hi-lo+1)
		conn, err := dial(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			return port, nil
		}
		_ = conn.Close()
	}
	return 0, fmt.Errorf("%w in %d-%d after %d attempts", ErrNoFreePort, lo, hi, attempts)
}
