package shm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Tamaños de las regiones (contrato con el script Lua).
const (
	RequestSize  = 1 * 1024 * 1024
	ResponseSize = 1 * 1024 * 1024
	CallbackSize = 2 * 1024 * 1024
)

// mutexPoll es el intervalo de espera al tomar el mutex de un lane; permite
// observar la cancelación del contexto.
const mutexPoll = 50 * time.Millisecond

var (
	// ErrSemaphoreFull indica un Release sobre un semáforo en su cuenta máxima.
	ErrSemaphoreFull = errors.New("shm: semaphore already at max count")

	// ErrUnsupportedPlatform indica que los objetos con nombre del kernel solo
	// existen en Windows.
	ErrUnsupportedPlatform = errors.New("named shared memory and semaphores are only supported on Windows")

	// ErrLaneClosed indica un acceso a un lane cuya región ya fue liberada.
	ErrLaneClosed = errors.New("shm: lane region released")
)

// Region es un bloque de memoria compartida con nombre.
type Region interface {
	// Bytes retorna la vista completa de la región.
	Bytes() []byte
	// Close desmapea la región y libera el handle.
	Close() error
}

// Semaphore es un semáforo con nombre compartido entre procesos.
type Semaphore interface {
	// Wait intenta decrementar el semáforo esperando como máximo timeout.
	// Retorna false si expiró el timeout.
	Wait(timeout time.Duration) (bool, error)
	// Release incrementa el semáforo en 1.
	Release() error
	// Close libera el handle.
	Close() error
}

// Namespace crea o abre objetos con nombre (regiones y semáforos).
//
// La implementación por defecto usa objetos del kernel de Windows; MemoryNamespace
// provee una implementación en proceso.
type Namespace interface {
	OpenRegion(name string, size int) (Region, error)
	OpenSemaphore(name string, initial, max int32) (Semaphore, error)
}

// LaneSpec describe los nombres y capacidades de un lane.
type LaneSpec struct {
	Name      string
	Region    string
	Signal    string
	Mutex     string
	Size      int
	SignalMax int32
}

// Lanes del protocolo QUIK#. Los nombres son contrato externo.
var (
	RequestLane = LaneSpec{
		Name:      "request",
		Region:    "QuikSharp_Request_Shmem",
		Signal:    "QuikSharp_Request_Sem",
		Mutex:     "QuikSharp_Request_MutexSem",
		Size:      RequestSize,
		SignalMax: 1,
	}
	ResponseLane = LaneSpec{
		Name:      "response",
		Region:    "QuikSharp_Response_Shmem",
		Signal:    "QuikSharp_Response_Sem",
		Mutex:     "QuikSharp_Response_MutexSem",
		Size:      ResponseSize,
		SignalMax: 1,
	}
	CallbackLane = LaneSpec{
		Name:      "callback",
		Region:    "QuikSharp_Callback_Shmem",
		Signal:    "QuikSharp_Callback_Sem",
		Mutex:     "QuikSharp_Callback_MutexSem",
		Size:      CallbackSize,
		SignalMax: math.MaxInt32,
	}
)

// Lane agrupa región + semáforo de señal + semáforo mutex.
type Lane struct {
	Spec   LaneSpec
	Region Region
	Signal Semaphore
	Mutex  Semaphore
}

// OpenLane abre (o crea) los tres objetos del lane. Si alguno falla, libera
// los que ya se abrieron.
func OpenLane(ns Namespace, spec LaneSpec) (*Lane, error) {
	region, err := ns.OpenRegion(spec.Region, spec.Size)
	if err != nil {
		return nil, fmt.Errorf("open region %s: %w", spec.Region, err)
	}
	if len(region.Bytes()) < spec.Size {
		region.Close()
		return nil, fmt.Errorf("region %s too small: %d < %d", spec.Region, len(region.Bytes()), spec.Size)
	}

	signal, err := ns.OpenSemaphore(spec.Signal, 0, spec.SignalMax)
	if err != nil {
		region.Close()
		return nil, fmt.Errorf("open semaphore %s: %w", spec.Signal, err)
	}

	mutex, err := ns.OpenSemaphore(spec.Mutex, 1, 1)
	if err != nil {
		signal.Close()
		region.Close()
		return nil, fmt.Errorf("open semaphore %s: %w", spec.Mutex, err)
	}

	return &Lane{Spec: spec, Region: region, Signal: signal, Mutex: mutex}, nil
}

// Capacity retorna el body máximo del lane.
func (l *Lane) Capacity() int {
	return MaxBody(l.Spec.Size)
}

// Write escribe un frame bajo el mutex del lane y luego libera la señal.
//
// El mutex se toma con polling para respetar ctx. La señal se libera fuera del
// mutex.
func (l *Lane) Write(ctx context.Context, correlationID, messageType uint32, body []byte) error {
	if len(body) > l.Capacity() {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(body), l.Capacity())
	}
	if err := l.lock(ctx); err != nil {
		return err
	}
	var err error
	if view, ok := l.view(); ok {
		err = WriteFrame(view, correlationID, messageType, body)
	} else {
		err = fmt.Errorf("%w: %s", ErrLaneClosed, l.Spec.Region)
	}
	if rerr := l.Mutex.Release(); rerr != nil && err == nil {
		err = fmt.Errorf("release mutex %s: %w", l.Spec.Mutex, rerr)
	}
	if err != nil {
		return err
	}
	return l.Signal.Release()
}

// Poll espera la señal del lane hasta timeout. Si llega, lee el frame bajo el
// mutex. Retorna ok=false si no hubo señal.
func (l *Lane) Poll(ctx context.Context, timeout time.Duration) (Header, []byte, bool, error) {
	signalled, err := l.Signal.Wait(timeout)
	if err != nil || !signalled {
		return Header{}, nil, false, err
	}
	if err := l.lock(ctx); err != nil {
		return Header{}, nil, true, err
	}
	view, ok := l.view()
	if !ok {
		l.Mutex.Release()
		return Header{}, nil, true, fmt.Errorf("%w: %s", ErrLaneClosed, l.Spec.Region)
	}
	h, body, err := ReadFrame(view)
	if rerr := l.Mutex.Release(); rerr != nil && err == nil {
		err = fmt.Errorf("release mutex %s: %w", l.Spec.Mutex, rerr)
	}
	return h, body, true, err
}

// AwaitDrained espera a que el peer consuma el frame anterior del lane.
//
// Sondea la señal con espera cero: si sigue activa, la devuelve y reintenta
// cada interval hasta que el peer la tome o ctx expire.
func (l *Lane) AwaitDrained(ctx context.Context, interval time.Duration) error {
	for {
		pending, err := l.Signal.Wait(0)
		if err != nil {
			return err
		}
		if !pending {
			return nil
		}
		if err := l.Signal.Release(); err != nil && !errors.Is(err, ErrSemaphoreFull) {
			return err
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// view retorna la región recortada a Spec.Size; ok=false si ya fue liberada.
func (l *Lane) view() ([]byte, bool) {
	buf := l.Region.Bytes()
	if len(buf) < l.Spec.Size {
		return nil, false
	}
	return buf[:l.Spec.Size], true
}

func (l *Lane) lock(ctx context.Context) error {
	for {
		ok, err := l.Mutex.Wait(mutexPoll)
		if err != nil {
			return fmt.Errorf("acquire mutex %s: %w", l.Spec.Mutex, err)
		}
		if ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Close libera los tres objetos del lane.
func (l *Lane) Close() error {
	if l == nil {
		return nil
	}
	return errors.Join(l.Mutex.Close(), l.Signal.Close(), l.Region.Close())
}
