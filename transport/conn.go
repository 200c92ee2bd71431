package transport

import (
	"context"
	"net"
	"sync"
)

// connSlot guarda la conexión vigente de un canal del socket transport.
//
// changed se cierra (y se reemplaza) en cada cambio de conexión, de modo que
// los loops que esperan una conexión o su pérdida se despiertan sin polling.
type connSlot struct {
	name    string
	address string

	mu      sync.Mutex
	conn    net.Conn
	changed chan struct{}
	closed  bool
}

func newConnSlot(name, address string) *connSlot {
	return &connSlot{name: name, address: address, changed: make(chan struct{})}
}

func (s *connSlot) get() (net.Conn, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.changed
}

// set publica conn. Si el slot ya está cerrado, cierra conn y retorna false.
func (s *connSlot) set(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		conn.Close()
		return false
	}
	s.conn = conn
	s.signal()
	return true
}

// invalidate cierra y descarta conn si sigue siendo la vigente.
func (s *connSlot) invalidate(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn == nil || s.conn != conn {
		return false
	}
	s.conn.Close()
	s.conn = nil
	s.signal()
	return true
}

// wait bloquea hasta que haya una conexión o ctx termine.
func (s *connSlot) wait(ctx context.Context) (net.Conn, error) {
	for {
		conn, changed := s.get()
		if conn != nil {
			return conn, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *connSlot) connected() bool {
	conn, _ := s.get()
	return conn != nil
}

func (s *connSlot) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.signal()
}

func (s *connSlot) signal() {
	close(s.changed)
	s.changed = make(chan struct{})
}
