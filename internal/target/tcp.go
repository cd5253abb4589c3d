package target

import (
	"context"
	"fmt"
	"net"

	"github.com/mcastellin/uptime-gossip/internal/probe"
)

// TCPTarget dials a TCP address and records whether the connection
// succeeded.
type TCPTarget struct {
	Address string
}

func (t *TCPTarget) Run(ctx context.Context) (probe.Sample, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return nil, fmt.Errorf("target.tcp: dialing %s: %w", t.Address, err)
	}
	defer conn.Close()

	return probe.Sample{
		"net.addr": probe.StringValue(conn.RemoteAddr().String()),
	}, nil
}

func (t *TCPTarget) String() string {
	return fmt.Sprintf("TCP %s", t.Address)
}
