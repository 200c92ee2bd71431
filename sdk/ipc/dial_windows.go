//go:build windows
// +build windows

package ipc

import (
	"context"
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// dialPipe conecta a un Named Pipe de Windows (\\.\pipe\<name>).
func dialPipe(ctx context.Context, path string) (net.Conn, error) {
	conn, err := winio.DialPipeContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pipe %s: %w", path, err)
	}
	return conn, nil
}
