//go:build !windows
// +build !windows

package ipc

import (
	"context"
	"fmt"
	"net"
)

func dialPipe(ctx context.Context, path string) (net.Conn, error) {
	return nil, fmt.Errorf("Named Pipes are only supported on Windows: %s", path)
}
