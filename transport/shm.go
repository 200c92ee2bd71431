package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Agremond/QuickSharp/sdk/codec"
	"github.com/Agremond/QuickSharp/sdk/domain"
	"github.com/Agremond/QuickSharp/sdk/shm"
	"github.com/Agremond/QuickSharp/sdk/telemetry"
	"github.com/Agremond/QuickSharp/sdk/telemetry/semconv"
	"github.com/Agremond/QuickSharp/sdk/utils"
)

const transportShm = "shm"

// ShmTransport implementa Transport sobre los tres lanes de memoria
// compartida del script QUIK#.
//
// Los writes físicos al lane de request se serializan: cada Send espera a que
// el peer consuma el frame anterior antes de sobrescribir la región.
type ShmTransport struct {
	*core
	cfg *Config
	ns  shm.Namespace

	request  *shm.Lane
	response *shm.Lane
	callback *shm.Lane

	// sendSlot serializa los writes físicos respetando ctx.
	sendSlot chan struct{}

	mu        sync.Mutex
	connected bool
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewShmTransport crea el transporte sin abrir recursos; ver Connect.
func NewShmTransport(cfg *Config, tel *telemetry.Client, opts ...Option) (*ShmTransport, error) {
	if tel == nil {
		return nil, errors.New("telemetry client is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	o := buildOptions(opts)
	c, err := newCore(transportShm, cfg, tel, o)
	if err != nil {
		return nil, err
	}
	return &ShmTransport{
		core:     c,
		cfg:      cfg,
		ns:       o.namespace,
		sendSlot: make(chan struct{}, 1),
	}, nil
}

// Connect abre las regiones y los seis semáforos e inicia los loops de
// respuesta y callbacks. Idempotente.
func (t *ShmTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return domain.NewError(domain.ErrConnectionFailed, "transport already closed")
	}
	if t.connected {
		return nil
	}

	if t.ns == nil {
		ns, err := shm.DefaultNamespace()
		if err != nil {
			return domain.WrapError(domain.ErrConnectionFailed, "open kernel namespace", err)
		}
		t.ns = ns
	}

	lanes := make([]*shm.Lane, 0, 3)
	for _, spec := range []shm.LaneSpec{shm.RequestLane, shm.ResponseLane, shm.CallbackLane} {
		lane, err := shm.OpenLane(t.ns, spec)
		if err != nil {
			for _, l := range lanes {
				l.Close()
			}
			t.logError(ctx, "Failed to open shared memory lane", err, semconv.Quik.Lane.String(spec.Name))
			return domain.WrapError(domain.ErrConnectionFailed, "open lane "+spec.Name, err)
		}
		lanes = append(lanes, lane)
	}
	t.request, t.response, t.callback = lanes[0], lanes[1], lanes[2]

	// Los loops viven hasta Close, no hasta el ctx de Connect.
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.wg.Add(2)
	go t.receiveLoop(t.response, t.cfg.ResponsePoll, t.cfg.ResponseBackoff, t.handleResponse)
	go t.receiveLoop(t.callback, t.cfg.CallbackPoll, t.cfg.CallbackBackoff, t.handleCallback)

	t.connected = true
	t.logInfo(ctx, "Shared memory transport connected",
		semconv.Quik.Transport.String(transportShm),
	)
	return nil
}

// IsConnected implementa Transport.
func (t *ShmTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && !t.closed
}

// Send implementa Transport.
func (t *ShmTransport) Send(ctx context.Context, command string, request, response interface{}, opts ...SendOption) error {
	if !t.IsConnected() {
		return domain.NewError(domain.ErrNotConnected, "shared memory transport not connected").WithCall(command, 0)
	}

	cl := t.begin(ctx, command)
	if err := t.prepare(cl, request, opts); err != nil {
		return t.finish(cl, nil, err, nil)
	}

	if len(cl.body) > t.request.Capacity() {
		err := domain.NewError(domain.ErrSizeLimitExceeded, "request body exceeds lane capacity").
			WithCall(command, cl.id()).
			WithDetail("body_size", len(cl.body)).
			WithDetail("capacity", t.request.Capacity())
		t.registry.Fail(cl.id(), err)
		return t.finish(cl, nil, err, nil)
	}

	if err := t.write(cl); err != nil {
		t.registry.Fail(cl.id(), err)
		return t.finish(cl, nil, err, nil)
	}
	t.metrics.RecordRequestSent(cl.parent, transportShm, command, semconv.Quik.BodySize.Int(len(cl.body)))

	env, err := t.await(cl)
	return t.finish(cl, env, err, response)
}

// write escribe el frame de cl en el lane de request.
//
// La espera del slot y del drenado termina con el ctx de la llamada, con
// valid_until o con Close. Nunca escribe un envelope vencido.
func (t *ShmTransport) write(cl *call) error {
	ctx, cancel := context.WithCancel(cl.ctx)
	defer cancel()
	stop := context.AfterFunc(t.ctx, cancel)
	defer stop()
	if vu := cl.env.ValidUntil; vu != nil {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithDeadline(ctx, *vu)
		defer cancelDeadline()
	}

	select {
	case t.sendSlot <- struct{}{}:
	case <-ctx.Done():
		return t.writeAborted(cl)
	}
	defer func() { <-t.sendSlot }()

	if t.ctx.Err() != nil {
		return t.writeAborted(cl)
	}
	err := t.request.AwaitDrained(ctx, t.cfg.DrainInterval)
	if err == nil && cl.env.Expired(time.Now()) {
		return t.writeAborted(cl)
	}
	if err == nil {
		err = t.request.Write(ctx, uint32(cl.id()), shm.MessageTypeRequest, cl.body)
	}
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return t.writeAborted(cl)
	default:
		t.logWarn(cl.parent, "Request lane write failed",
			append(semconv.CallAttributes(cl.command, cl.id()), semconv.Quik.Reason.String(err.Error()))...,
		)
		return domain.WrapError(domain.ErrChannelLost, "write request lane", err).WithCall(cl.command, cl.id())
	}
}

// writeAborted clasifica un write que no llegó a la región.
func (t *ShmTransport) writeAborted(cl *call) error {
	switch {
	case t.ctx.Err() != nil:
		return domain.NewError(domain.ErrCancelled, "transport closed").WithCall(cl.command, cl.id())
	case cl.ctx.Err() != nil:
		return t.deadlineError(cl)
	default:
		t.metrics.RecordRequestExpired(cl.parent, transportShm, cl.command, "dequeue")
		return domain.NewError(domain.ErrTimeout, "valid_until elapsed before write").WithCall(cl.command, cl.id())
	}
}

// receiveLoop drena un lane entrante: un frame por señal adquirida.
func (t *ShmTransport) receiveLoop(lane *shm.Lane, poll, backoff time.Duration, handle func(context.Context, shm.Header, []byte)) {
	defer t.wg.Done()
	ctx := t.ctx
	laneAttr := semconv.Quik.Lane.String(lane.Spec.Name)

	for ctx.Err() == nil {
		h, body, ok, err := lane.Poll(ctx, poll)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if isFrameError(err) {
				t.logDebug(ctx, "Dropping invalid frame", laneAttr, semconv.Quik.Reason.String(err.Error()))
				t.metrics.RecordFrameDropped(ctx, transportShm, lane.Spec.Name, "invalid_frame")
				continue
			}
			t.logError(ctx, "Shared memory lane read failed", err, laneAttr)
			utils.SleepUntil(ctx.Done(), backoff)
			continue
		}
		if !ok {
			continue
		}
		handle(ctx, h, body)
	}
}

func (t *ShmTransport) handleResponse(ctx context.Context, h shm.Header, body []byte) {
	env, err := codec.Decode(body)
	if err != nil {
		t.logDebug(ctx, "Dropping undecodable response frame",
			semconv.Quik.CorrelationID.Int64(int64(h.CorrelationID)),
			semconv.Quik.Reason.String(err.Error()),
		)
		t.metrics.RecordFrameDropped(ctx, transportShm, shm.ResponseLane.Name, "decode")
		return
	}

	id := env.ID
	if id <= 0 {
		id = int64(h.CorrelationID)
	}
	if !t.resolveResponse(ctx, id, env) {
		t.logDebug(ctx, "Dropping unmatched response frame", semconv.CallAttributes(env.Command, id)...)
		t.metrics.RecordFrameDropped(ctx, transportShm, shm.ResponseLane.Name, "unmatched")
	}
}

func (t *ShmTransport) handleCallback(ctx context.Context, _ shm.Header, body []byte) {
	env, err := codec.Decode(body)
	if err != nil {
		t.logDebug(ctx, "Dropping undecodable callback frame", semconv.Quik.Reason.String(err.Error()))
		t.metrics.RecordFrameDropped(ctx, transportShm, shm.CallbackLane.Name, "decode")
		t.events.ReportError(ctx, err)
		return
	}
	t.dispatcher.Dispatch(ctx, env)
}

func isFrameError(err error) bool {
	return errors.Is(err, shm.ErrBadMagic) || errors.Is(err, shm.ErrBadVersion) || errors.Is(err, shm.ErrBadLength)
}

// Close detiene los loops, cancela las llamadas pendientes y libera lanes.
// Idempotente y seguro antes de Connect.
//
// Los lanes solo se liberan cuando ningún loop ni write sigue activo; si el
// join expira quedan mapeados.
func (t *ShmTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	wasConnected := t.connected
	t.connected = false
	cancel := t.cancel
	t.mu.Unlock()

	ctx := context.Background()
	idle := true
	if cancel != nil {
		cancel()
		if !waitGroupTimeout(&t.wg, t.cfg.JoinTimeout) {
			t.logWarn(ctx, "Receive loops did not stop within join timeout",
				semconv.Quik.Transport.String(transportShm),
			)
			idle = false
		}
	}
	// El slot queda tomado: ningún write posterior llega a la región.
	if wasConnected && !acquireSlot(t.sendSlot, t.cfg.JoinTimeout) {
		t.logWarn(ctx, "Request lane write did not stop within join timeout",
			semconv.Quik.Transport.String(transportShm),
		)
		idle = false
	}

	if n := t.registry.DrainAllAsCancelled(); n > 0 {
		t.logInfo(ctx, "Cancelled pending calls on close", semconv.Quik.Transport.String(transportShm))
	}

	storeErr := t.closeTransactionIDs()
	if !wasConnected {
		return storeErr
	}
	if !idle {
		t.logWarn(ctx, "Shared memory lanes left mapped, goroutines still running",
			semconv.Quik.Transport.String(transportShm),
		)
		return storeErr
	}
	err := errors.Join(storeErr, t.request.Close(), t.response.Close(), t.callback.Close())
	t.logInfo(ctx, "Shared memory transport closed")
	return err
}

// acquireSlot toma slot esperando hasta timeout. Retorna false si expiró.
func acquireSlot(slot chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case slot <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

// waitGroupTimeout espera wg hasta timeout. Retorna false si expiró.
func waitGroupTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
