package transport

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Agremond/QuickSharp/sdk/codec"
	"github.com/Agremond/QuickSharp/sdk/domain"
	"github.com/Agremond/QuickSharp/sdk/ipc"
	"github.com/Agremond/QuickSharp/sdk/telemetry"
	"github.com/Agremond/QuickSharp/sdk/telemetry/semconv"
	"github.com/Agremond/QuickSharp/sdk/utils"
)

const (
	transportSocket = "socket"

	channelResponse = "response"
	channelCallback = "callback"
)

// outbound es un request codificado esperando al writer loop.
type outbound struct {
	id         int64
	command    string
	body       []byte
	validUntil *time.Time
}

func (o outbound) expired(now time.Time) bool {
	return o.validUntil != nil && now.After(*o.validUntil)
}

// inbound es un callback (o un evento de ciclo de vida si env es nil)
// esperando al invoker loop.
type inbound struct {
	env  *codec.Envelope
	kind domain.EventKind
}

// SocketTransport implementa Transport sobre dos conexiones line-delimited:
// request/response en port y callbacks en port+1.
//
// Cada conexión se reconecta sola con backoff fijo; la pérdida del canal nunca
// se propaga a un Send en curso salvo por su propio timeout.
type SocketTransport struct {
	*core
	cfg    *Config
	dialer ipc.Dialer
	pipe   *ipc.PipeConfig

	responseAddr string
	callbackAddr string

	outbound *queue[outbound]
	inbound  *queue[inbound]

	mu       sync.Mutex
	started  bool
	closed   bool
	response *connSlot
	callback *connSlot
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// Solo los usa el writer loop.
	writerConn net.Conn
	writer     *ipc.LineWriter
}

// NewSocketTransport crea el transporte sin conectar; ver Connect.
func NewSocketTransport(cfg *Config, tel *telemetry.Client, opts ...Option) (*SocketTransport, error) {
	if tel == nil {
		return nil, errors.New("telemetry client is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	o := buildOptions(opts)
	c, err := newCore(transportSocket, cfg, tel, o)
	if err != nil {
		return nil, err
	}

	dialer := o.dialer
	if dialer == nil {
		dialer = ipc.NewNetDialer()
	}
	pipe := ipc.DefaultPipeConfig()
	pipe.Charset = cfg.Charset

	responseAddr, callbackAddr := socketAddresses(cfg.Host, cfg.Port)
	return &SocketTransport{
		core:         c,
		cfg:          cfg,
		dialer:       dialer,
		pipe:         pipe,
		responseAddr: responseAddr,
		callbackAddr: callbackAddr,
		outbound:     newQueue[outbound](),
		inbound:      newQueue[inbound](),
	}, nil
}

// socketAddresses retorna las direcciones de los canales de respuesta y de
// callbacks. Para Named Pipes el canal de callbacks es "<pipe>_callback".
func socketAddresses(host string, port int) (string, string) {
	if ipc.IsPipeAddress(host) {
		return host, host + "_callback"
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), net.JoinHostPort(host, strconv.Itoa(port+1))
}

// Connect inicia los loops de conexión y espera a que ambos canales estén
// conectados o ctx termine. Si ctx termina primero detiene los loops y
// retorna CONNECTION_FAILED. Idempotente.
func (t *SocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.NewError(domain.ErrConnectionFailed, "transport already closed")
	}
	if !t.started {
		t.start()
	}
	response, callback := t.response, t.callback
	t.mu.Unlock()

	for _, slot := range []*connSlot{response, callback} {
		if _, err := slot.wait(ctx); err != nil {
			t.logWarn(ctx, "Connect aborted before channels were ready",
				semconv.Quik.Address.String(slot.address),
				semconv.Quik.Lane.String(slot.name),
			)
			t.mu.Lock()
			if t.started && t.response == response {
				t.stop()
			}
			t.mu.Unlock()
			return domain.WrapError(domain.ErrConnectionFailed, "connect "+slot.address, err)
		}
	}

	t.logInfo(ctx, "Socket transport connected",
		semconv.Quik.Address.String(t.responseAddr),
	)
	return nil
}

// start crea los slots y lanza los loops. Requiere t.mu.
func (t *SocketTransport) start() {
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.response = newConnSlot(channelResponse, t.responseAddr)
	t.callback = newConnSlot(channelCallback, t.callbackAddr)
	t.writerConn, t.writer = nil, nil

	t.wg.Add(6)
	go t.connectLoop(t.ctx, t.response)
	go t.connectLoop(t.ctx, t.callback)
	go t.writeLoop(t.ctx, t.response)
	go t.responseLoop(t.ctx, t.response)
	go t.callbackLoop(t.ctx, t.callback)
	go t.invokeLoop(t.ctx)
	t.started = true
}

// stop detiene los loops con join acotado y cancela todo lo pendiente.
// Requiere t.mu.
func (t *SocketTransport) stop() {
	ctx := context.Background()
	t.cancel()
	t.response.close()
	t.callback.close()
	if !waitGroupTimeout(&t.wg, t.cfg.JoinTimeout) {
		t.logWarn(ctx, "Socket loops did not stop within join timeout",
			semconv.Quik.Transport.String(transportSocket),
		)
	}
	t.started = false

	t.outbound.Reset()
	t.inbound.Reset()
	if n := t.registry.DrainAllAsCancelled(); n > 0 {
		t.logInfo(ctx, "Cancelled pending calls", semconv.Quik.Transport.String(transportSocket))
	}
}

// IsConnected indica si ambos canales tienen conexión.
func (t *SocketTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started && !t.closed && t.response.connected() && t.callback.connected()
}

// Send encola el request para el writer loop y espera su respuesta. Un canal
// caído no falla la llamada: el request se escribe al reconectar.
func (t *SocketTransport) Send(ctx context.Context, command string, request, response interface{}, opts ...SendOption) error {
	t.mu.Lock()
	ready := t.started && !t.closed
	t.mu.Unlock()
	if !ready {
		return domain.NewError(domain.ErrNotConnected, "socket transport not started").WithCall(command, 0)
	}

	cl := t.begin(ctx, command)
	if err := t.prepare(cl, request, opts); err != nil {
		return t.finish(cl, nil, err, nil)
	}

	t.outbound.Push(outbound{
		id:         cl.id(),
		command:    command,
		body:       cl.body,
		validUntil: cl.env.ValidUntil,
	})

	env, err := t.await(cl)
	return t.finish(cl, env, err, response)
}

// connectLoop mantiene conectado un slot: disca con backoff fijo y, una vez
// conectado, espera a que otro loop invalide la conexión.
func (t *SocketTransport) connectLoop(ctx context.Context, slot *connSlot) {
	defer t.wg.Done()

	failures := 0
	for ctx.Err() == nil {
		conn, changed := slot.get()
		if conn != nil {
			select {
			case <-changed:
				continue
			case <-ctx.Done():
				return
			}
		}

		conn, err := t.dialer.DialContext(ctx, "tcp", slot.address)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			t.metrics.RecordReconnectAttempt(ctx, transportSocket, slot.name, "failure")
			if t.cfg.ReconnectTraceEvery > 0 && failures%t.cfg.ReconnectTraceEvery == 0 {
				t.logWarn(ctx, "Still unable to connect",
					semconv.Quik.Address.String(slot.address),
					semconv.Quik.Lane.String(slot.name),
					semconv.Quik.Attempt.Int(failures),
					semconv.Quik.Reason.String(err.Error()),
				)
			}
			utils.SleepUntil(ctx.Done(), t.cfg.ReconnectBackoff)
			continue
		}

		if !slot.set(conn) {
			return
		}
		t.metrics.RecordReconnectAttempt(ctx, transportSocket, slot.name, "success")
		t.logInfo(ctx, "Channel connected",
			semconv.Quik.Address.String(slot.address),
			semconv.Quik.Lane.String(slot.name),
			semconv.Quik.Attempt.Int(failures+1),
		)
		failures = 0
	}
}

// writeLoop drena la cola de salida hacia el canal de request.
func (t *SocketTransport) writeLoop(ctx context.Context, slot *connSlot) {
	defer t.wg.Done()

	for {
		item, ok := t.outbound.Pop(ctx)
		if !ok {
			return
		}
		if !t.writable(ctx, item) {
			continue
		}

		conn, err := slot.wait(ctx)
		if err != nil {
			t.outbound.PushFront(item)
			return
		}
		// Puede haber pasado tiempo esperando la reconexión.
		if !t.writable(ctx, item) {
			continue
		}
		if err := t.writerFor(conn).WriteLine(item.body); err != nil {
			t.logWarn(ctx, "Request write failed, reconnecting",
				append(semconv.CallAttributes(item.command, item.id), semconv.Quik.Reason.String(err.Error()))...,
			)
			t.outbound.PushFront(item)
			slot.invalidate(conn)
			continue
		}
		t.metrics.RecordRequestSent(ctx, transportSocket, item.command, semconv.Quik.BodySize.Int(len(item.body)))
	}
}

// writable indica si item todavía debe escribirse. Un item cuyo valid_until
// venció resuelve su llamada como TIMEOUT sin tocar el canal.
func (t *SocketTransport) writable(ctx context.Context, item outbound) bool {
	// La llamada ya terminó (timeout o cancelación) mientras esperaba.
	if !t.registry.Has(item.id) {
		return false
	}
	if item.expired(time.Now()) {
		t.metrics.RecordRequestExpired(ctx, transportSocket, item.command, "dequeue")
		t.registry.Fail(item.id, domain.NewError(domain.ErrTimeout, "valid_until elapsed before write").
			WithCall(item.command, item.id))
		return false
	}
	return true
}

func (t *SocketTransport) writerFor(conn net.Conn) *ipc.LineWriter {
	if t.writerConn != conn {
		t.writerConn = conn
		t.writer = ipc.NewLineWriter(conn, t.pipe)
	}
	return t.writer
}

// responseLoop lee líneas del canal de request/response. Cada línea se
// procesa en su propia goroutine para no frenar la lectura del socket.
func (t *SocketTransport) responseLoop(ctx context.Context, slot *connSlot) {
	defer t.wg.Done()

	for ctx.Err() == nil {
		conn, err := slot.wait(ctx)
		if err != nil {
			return
		}
		reader, err := ipc.NewLineReader(conn, t.pipe)
		if err != nil {
			t.logError(ctx, "Cannot build line reader", err, semconv.Quik.Lane.String(slot.name))
			slot.invalidate(conn)
			utils.SleepUntil(ctx.Done(), t.cfg.ReconnectBackoff)
			continue
		}

		for {
			line, err := reader.ReadLine()
			if err != nil {
				if ctx.Err() == nil {
					t.logWarn(ctx, "Response channel lost",
						semconv.Quik.Address.String(slot.address),
						semconv.Quik.Reason.String(err.Error()),
					)
				}
				slot.invalidate(conn)
				break
			}
			t.wg.Add(1)
			go func(line []byte) {
				defer t.wg.Done()
				t.handleResponseLine(ctx, line)
			}(line)
		}
	}
}

func (t *SocketTransport) handleResponseLine(ctx context.Context, line []byte) {
	env, err := codec.Decode(line)
	if err != nil {
		t.logWarn(ctx, "Dropping undecodable response line", semconv.Quik.Reason.String(err.Error()))
		t.metrics.RecordFrameDropped(ctx, transportSocket, channelResponse, "decode")
		t.events.ReportError(ctx, err)
		return
	}

	if env.IsCallback() {
		t.inbound.Push(inbound{env: env})
		return
	}

	if !t.resolveResponse(ctx, env.ID, env) {
		err := domain.NewError(domain.ErrProtocolViolation, "response for unknown correlation id").
			WithCall(env.Command, env.ID)
		t.logWarn(ctx, "Protocol violation",
			append(semconv.CallAttributes(env.Command, env.ID), semconv.Quik.ErrorCode.String(string(domain.ErrProtocolViolation)))...,
		)
		t.metrics.RecordProtocolViolation(ctx, transportSocket, env.Command)
		t.events.ReportError(ctx, err)
	}
}

// callbackLoop lee el canal de callbacks y encola cada envelope para el
// invoker. Cada conexión emite ConnectedToPeer y su pérdida
// DisconnectedFromPeer.
func (t *SocketTransport) callbackLoop(ctx context.Context, slot *connSlot) {
	defer t.wg.Done()

	for ctx.Err() == nil {
		conn, err := slot.wait(ctx)
		if err != nil {
			return
		}
		reader, err := ipc.NewLineReader(conn, t.pipe)
		if err != nil {
			t.logError(ctx, "Cannot build line reader", err, semconv.Quik.Lane.String(slot.name))
			slot.invalidate(conn)
			utils.SleepUntil(ctx.Done(), t.cfg.ReconnectBackoff)
			continue
		}
		t.inbound.Push(inbound{kind: domain.EventConnectedToPeer})

		for {
			line, err := reader.ReadLine()
			if err != nil {
				slot.invalidate(conn)
				if ctx.Err() == nil {
					t.logWarn(ctx, "Callback channel lost",
						semconv.Quik.Address.String(slot.address),
						semconv.Quik.Reason.String(err.Error()),
					)
					t.inbound.Push(inbound{kind: domain.EventDisconnectedFromPeer})
				}
				break
			}

			env, err := codec.Decode(line)
			if err != nil {
				t.logWarn(ctx, "Dropping undecodable callback line", semconv.Quik.Reason.String(err.Error()))
				t.metrics.RecordFrameDropped(ctx, transportSocket, channelCallback, "decode")
				t.events.ReportError(ctx, err)
				continue
			}
			t.inbound.Push(inbound{env: env})
		}
	}
}

// invokeLoop entrega los callbacks al dispatcher en orden de llegada.
func (t *SocketTransport) invokeLoop(ctx context.Context) {
	defer t.wg.Done()

	for {
		item, ok := t.inbound.Pop(ctx)
		if !ok {
			return
		}
		if item.env == nil {
			t.dispatcher.Emit(ctx, item.kind)
			continue
		}
		t.dispatcher.Dispatch(ctx, item.env)
	}
}

// Close detiene los loops, cierra ambas conexiones y cancela las llamadas
// pendientes. Idempotente y seguro antes de Connect.
func (t *SocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.started {
		t.stop()
	} else {
		t.registry.DrainAllAsCancelled()
	}
	t.logInfo(context.Background(), "Socket transport closed")
	return t.closeTransactionIDs()
}
