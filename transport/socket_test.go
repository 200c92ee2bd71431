package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/Agremond/QuickSharp/sdk/codec"
	"github.com/Agremond/QuickSharp/sdk/domain"
)

// routeDialer redirige las direcciones configuradas a los listeners del test.
type routeDialer struct {
	routes  map[string]string
	blocked atomic.Bool
}

func (d *routeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.blocked.Load() {
		return nil, errors.New("peer unreachable")
	}
	target, ok := d.routes[address]
	if !ok {
		return nil, errors.New("no route to " + address)
	}
	var nd net.Dialer
	return nd.DialContext(ctx, network, target)
}

// fakeSocketPeer simula el script Lua: responde en un listener y emite
// callbacks en otro.
type fakeSocketPeer struct {
	responseLn net.Listener
	callbackLn net.Listener
	handle     func(p *fakeSocketPeer, req *codec.Envelope) *codec.Envelope
	encoder    *encoding.Encoder

	mu           sync.Mutex
	responseConn net.Conn
	callbackConn net.Conn
	requests     []*codec.Envelope

	received        atomic.Int64
	responseAccepts atomic.Int64
	callbackAccepts atomic.Int64
}

func startFakeSocketPeer(t *testing.T, handle func(p *fakeSocketPeer, req *codec.Envelope) *codec.Envelope) *fakeSocketPeer {
	t.Helper()
	responseLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	callbackLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := &fakeSocketPeer{responseLn: responseLn, callbackLn: callbackLn, handle: handle}
	go p.acceptResponses()
	go p.acceptCallbacks()
	t.Cleanup(p.close)
	return p
}

func (p *fakeSocketPeer) dialer(cfg *Config) *routeDialer {
	resp, cb := socketAddresses(cfg.Host, cfg.Port)
	return &routeDialer{routes: map[string]string{
		resp: p.responseLn.Addr().String(),
		cb:   p.callbackLn.Addr().String(),
	}}
}

func (p *fakeSocketPeer) acceptResponses() {
	for {
		conn, err := p.responseLn.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.responseConn = conn
		p.mu.Unlock()
		p.responseAccepts.Add(1)
		go p.serve(conn)
	}
}

func (p *fakeSocketPeer) acceptCallbacks() {
	for {
		conn, err := p.callbackLn.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.callbackConn = conn
		p.mu.Unlock()
		p.callbackAccepts.Add(1)
		go func() {
			// Drena hasta que el cliente cierre.
			_, _ = bufio.NewReader(conn).ReadString(0)
		}()
	}
}

func (p *fakeSocketPeer) serve(conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		p.received.Add(int64(len(line)))
		if err != nil {
			return
		}
		req, err := codec.Decode(line)
		if err != nil {
			continue
		}
		p.mu.Lock()
		p.requests = append(p.requests, req)
		p.mu.Unlock()
		if resp := p.handle(p, req); resp != nil {
			_ = p.writeLine(conn, resp)
		}
	}
}

func (p *fakeSocketPeer) writeLine(conn net.Conn, env *codec.Envelope) error {
	body, err := codec.Encode(env)
	if err != nil {
		return err
	}
	line := string(body) + "\n"
	if p.encoder != nil {
		if line, err = p.encoder.String(line); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = conn.Write([]byte(line))
	return err
}

func (p *fakeSocketPeer) emit(env *codec.Envelope) error {
	p.mu.Lock()
	conn := p.callbackConn
	p.mu.Unlock()
	if conn == nil {
		return errors.New("callback channel not connected")
	}
	return p.writeLine(conn, env)
}

// kill corta ambas conexiones activas.
func (p *fakeSocketPeer) kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range []net.Conn{p.responseConn, p.callbackConn} {
		if c != nil {
			c.Close()
		}
	}
	p.responseConn, p.callbackConn = nil, nil
}

func (p *fakeSocketPeer) sawRequest(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.requests {
		if r.ID == id {
			return true
		}
	}
	return false
}

func (p *fakeSocketPeer) close() {
	p.responseLn.Close()
	p.callbackLn.Close()
	p.kill()
}

func socketPong(p *fakeSocketPeer, req *codec.Envelope) *codec.Envelope {
	return &codec.Envelope{ID: req.ID, Command: req.Command, CreatedAt: req.CreatedAt, Data: "Pong"}
}

func socketTestConfig() *Config {
	cfg := testConfig(KindSocket)
	cfg.Charset = "utf-8"
	return cfg
}

func newConnectedSocket(t *testing.T, cfg *Config, peer *fakeSocketPeer, opts ...Option) (*SocketTransport, *routeDialer) {
	t.Helper()
	dialer := peer.dialer(cfg)
	tr, err := NewSocketTransport(cfg, newTestTelemetryClient(t), append([]Option{WithDialer(dialer)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, tr.Connect(ctx))
	return tr, dialer
}

func TestSocketPingPong(t *testing.T) {
	peer := startFakeSocketPeer(t, socketPong)
	tr, _ := newConnectedSocket(t, socketTestConfig(), peer)
	assert.True(t, tr.IsConnected())

	pong, err := Call[string](context.Background(), tr, "ping", "Ping")
	require.NoError(t, err)
	assert.Equal(t, "Pong", pong)

	pong, err = Call[string](context.Background(), tr, "ping", "Ping", WithValidUntil(time.Now().Add(45*time.Second+time.Second)))
	require.NoError(t, err)
	assert.Equal(t, "Pong", pong)
}

func TestSocketDecodesCP1251Responses(t *testing.T) {
	peer := startFakeSocketPeer(t, func(p *fakeSocketPeer, req *codec.Envelope) *codec.Envelope {
		return &codec.Envelope{ID: req.ID, Command: req.Command, Data: "Сбербанк"}
	})
	peer.encoder = charmap.Windows1251.NewEncoder()

	cfg := socketTestConfig()
	cfg.Charset = "cp1251"
	tr, _ := newConnectedSocket(t, cfg, peer)

	name, err := Call[string](context.Background(), tr, "getSecurityInfo", "TQBR|SBER")
	require.NoError(t, err)
	assert.Equal(t, "Сбербанк", name)
}

func TestSocketSendBeforeConnect(t *testing.T) {
	tr, err := NewSocketTransport(socketTestConfig(), newTestTelemetryClient(t))
	require.NoError(t, err)

	err = tr.Send(context.Background(), "ping", "Ping", nil)
	assert.True(t, domain.IsCode(err, domain.ErrNotConnected))
	assert.False(t, tr.IsConnected())
	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
}

func TestSocketConnectFailsWhenPeerAbsent(t *testing.T) {
	cfg := socketTestConfig()
	dialer := &routeDialer{}
	dialer.blocked.Store(true)
	tr, err := NewSocketTransport(cfg, newTestTelemetryClient(t), WithDialer(dialer))
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = tr.Connect(ctx)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrConnectionFailed))
	assert.False(t, tr.IsConnected())

	err = tr.Send(context.Background(), "ping", "Ping", nil)
	assert.True(t, domain.IsCode(err, domain.ErrNotConnected))
}

func TestSocketExpiredValidUntilWritesNothing(t *testing.T) {
	peer := startFakeSocketPeer(t, socketPong)
	metrics, reader := newTestMetrics(t)
	tr, _ := newConnectedSocket(t, socketTestConfig(), peer, WithMetrics(metrics))

	start := time.Now()
	err := tr.Send(context.Background(), "ping", "Ping", nil, WithValidUntil(time.Now().Add(-time.Second)))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrTimeout))
	assert.Less(t, time.Since(start), time.Second)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), peer.received.Load())
	assert.Equal(t, int64(1), counterValue(t, reader, "quik.request.expired"))
	assert.Equal(t, int64(0), counterValue(t, reader, "quik.request.sent"))
}

func TestSocketExpiresQueuedRequestWhileDisconnected(t *testing.T) {
	peer := startFakeSocketPeer(t, socketPong)
	tr, dialer := newConnectedSocket(t, socketTestConfig(), peer)

	dialer.blocked.Store(true)
	peer.kill()
	require.Eventually(t, func() bool { return !tr.IsConnected() }, 2*time.Second, 5*time.Millisecond)

	time.AfterFunc(200*time.Millisecond, func() { dialer.blocked.Store(false) })

	err := tr.Send(context.Background(), "ping", "Ping", nil, WithValidUntil(time.Now().Add(50*time.Millisecond)))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrTimeout))
	// Primer id emitido por el registro.
	assert.False(t, peer.sawRequest(1))

	// El canal se recupera y las llamadas siguientes funcionan.
	pong, err := Call[string](context.Background(), tr, "ping", "Ping")
	require.NoError(t, err)
	assert.Equal(t, "Pong", pong)
}

func TestSocketReconnectsAfterConnectionLoss(t *testing.T) {
	peer := startFakeSocketPeer(t, socketPong)
	tr, _ := newConnectedSocket(t, socketTestConfig(), peer)

	var connected, disconnected atomic.Int64
	tr.Events().Subscribe(domain.EventConnectedToPeer, func(ctx context.Context, ev Event) error {
		connected.Add(1)
		return nil
	})
	tr.Events().Subscribe(domain.EventDisconnectedFromPeer, func(ctx context.Context, ev Event) error {
		disconnected.Add(1)
		return nil
	})

	_, err := Call[string](context.Background(), tr, "ping", "Ping")
	require.NoError(t, err)

	peer.kill()
	require.Eventually(t, func() bool {
		return peer.responseAccepts.Load() >= 2 && peer.callbackAccepts.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, tr.IsConnected, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pong, err := Call[string](ctx, tr, "ping", "Ping")
	require.NoError(t, err)
	assert.Equal(t, "Pong", pong)

	assert.Eventually(t, func() bool { return disconnected.Load() >= 1 && connected.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, tr.IsConnected())
}

func TestSocketCallbacksDoNotDelayResponse(t *testing.T) {
	const burst = 1000
	peer := startFakeSocketPeer(t, func(p *fakeSocketPeer, req *codec.Envelope) *codec.Envelope {
		for i := 0; i < burst; i++ {
			_ = p.emit(&codec.Envelope{Command: "OnAllTrade", Data: map[string]int{"seq": i}})
		}
		return socketPong(p, req)
	})
	tr, _ := newConnectedSocket(t, socketTestConfig(), peer)
	require.Eventually(t, func() bool { return peer.callbackAccepts.Load() == 1 }, time.Second, 5*time.Millisecond)

	var seen atomic.Int64
	tr.Events().Subscribe(domain.EventAllTrade, func(ctx context.Context, ev Event) error {
		seen.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pong, err := Call[string](ctx, tr, "ping", "Ping")
	require.NoError(t, err)
	assert.Equal(t, "Pong", pong)
	assert.Eventually(t, func() bool { return seen.Load() == burst }, 5*time.Second, 10*time.Millisecond)
}

func TestSocketUnknownCallbackTolerated(t *testing.T) {
	peer := startFakeSocketPeer(t, socketPong)
	tr, _ := newConnectedSocket(t, socketTestConfig(), peer)
	require.Eventually(t, func() bool { return peer.callbackAccepts.Load() == 1 }, time.Second, 5*time.Millisecond)

	unknown := make(chan string, 1)
	tr.Events().OnUnknown(func(ctx context.Context, env *codec.Envelope) { unknown <- env.Command })
	stops := make(chan struct{}, 1)
	tr.Events().Subscribe(domain.EventStop, func(ctx context.Context, ev Event) error {
		stops <- struct{}{}
		return nil
	})

	require.NoError(t, peer.emit(&codec.Envelope{Command: "totallyUnknownEvent"}))
	require.NoError(t, peer.emit(&codec.Envelope{Command: "OnStop", Data: 1}))

	select {
	case cmd := <-unknown:
		assert.Equal(t, "totallyUnknownEvent", cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("unknown sink not invoked")
	}
	select {
	case <-stops:
	case <-time.After(2 * time.Second):
		t.Fatal("known callback after unknown one was not dispatched")
	}
}

func TestSocketUnmatchedResponseIsProtocolViolation(t *testing.T) {
	peer := startFakeSocketPeer(t, func(p *fakeSocketPeer, req *codec.Envelope) *codec.Envelope {
		return &codec.Envelope{ID: req.ID + 1000, Command: req.Command, Data: "Pong"}
	})
	metrics, reader := newTestMetrics(t)
	tr, _ := newConnectedSocket(t, socketTestConfig(), peer, WithMetrics(metrics))

	violations := make(chan error, 1)
	tr.Events().OnError(func(ctx context.Context, err error) { violations <- err })

	err := tr.Send(context.Background(), "ping", "Ping", nil, WithTimeout(300*time.Millisecond))
	assert.True(t, domain.IsCode(err, domain.ErrTimeout))

	select {
	case v := <-violations:
		assert.True(t, domain.IsCode(v, domain.ErrProtocolViolation))
	case <-time.After(time.Second):
		t.Fatal("protocol violation not reported")
	}
	assert.Equal(t, int64(1), counterValue(t, reader, "quik.protocol.violation"))
	assert.True(t, tr.IsConnected())
}

func TestSocketIDLessLineOnResponseChannelIsCallback(t *testing.T) {
	peer := startFakeSocketPeer(t, func(p *fakeSocketPeer, req *codec.Envelope) *codec.Envelope {
		return &codec.Envelope{Command: "OnInit", Data: "script started"}
	})
	tr, _ := newConnectedSocket(t, socketTestConfig(), peer)

	inits := make(chan string, 1)
	On(tr.Events(), domain.EventInit, func(ctx context.Context, msg string) { inits <- msg })

	err := tr.Send(context.Background(), "ping", "Ping", nil, WithTimeout(100*time.Millisecond))
	assert.True(t, domain.IsCode(err, domain.ErrTimeout))

	select {
	case msg := <-inits:
		assert.Equal(t, "script started", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("id-less line was not dispatched as callback")
	}
}

func TestSocketCloseCancelsPending(t *testing.T) {
	peer := startFakeSocketPeer(t, func(p *fakeSocketPeer, req *codec.Envelope) *codec.Envelope { return nil })
	tr, _ := newConnectedSocket(t, socketTestConfig(), peer)

	errCh := make(chan error, 1)
	go func() { errCh <- tr.Send(context.Background(), "ping", "Ping", nil) }()
	require.Eventually(t, func() bool { return tr.Registry().Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, tr.Close())
	select {
	case err := <-errCh:
		assert.True(t, domain.IsCode(err, domain.ErrCancelled))
	case <-time.After(3 * time.Second):
		t.Fatal("Send did not return after Close")
	}
	assert.False(t, tr.IsConnected())

	err := tr.Send(context.Background(), "ping", "Ping", nil)
	assert.True(t, domain.IsCode(err, domain.ErrNotConnected))
}

func TestSocketConcurrentSendsGetDistinctIDs(t *testing.T) {
	peer := startFakeSocketPeer(t, socketPong)
	tr, _ := newConnectedSocket(t, socketTestConfig(), peer)

	const n = 50
	var wg sync.WaitGroup
	var failures atomic.Int64
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if pong, err := Call[string](context.Background(), tr, "ping", "Ping"); err != nil || pong != "Pong" {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(0), failures.Load())

	peer.mu.Lock()
	defer peer.mu.Unlock()
	ids := make(map[int64]struct{})
	for _, r := range peer.requests {
		ids[r.ID] = struct{}{}
	}
	assert.Len(t, ids, n)
	assert.True(t, strings.HasPrefix(tr.PrependWithSessionID(1), tr.SessionID()+"."))
}
