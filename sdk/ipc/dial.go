package ipc

import (
	"context"
	"net"
	"time"
)

// NetDialer es el Dialer por defecto: TCP para host:port y Named Pipes para
// direcciones con prefijo \\.\pipe\.
type NetDialer struct {
	// KeepAlive para conexiones TCP (0 = default del runtime).
	KeepAlive time.Duration
}

// NewNetDialer crea el dialer por defecto.
func NewNetDialer() *NetDialer {
	return &NetDialer{KeepAlive: 30 * time.Second}
}

// DialContext implementa Dialer.
func (d *NetDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if IsPipeAddress(address) {
		return dialPipe(ctx, address)
	}
	nd := net.Dialer{KeepAlive: d.KeepAlive}
	conn, err := nd.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}
