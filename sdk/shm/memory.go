package shm

import (
	"fmt"
	"sync"
	"time"
)

// MemoryNamespace implementa Namespace dentro del proceso.
//
// Abrir dos veces el mismo nombre retorna el mismo objeto, igual que los
// objetos con nombre del kernel. Se usa para tests y para hospedar un peer
// en el mismo proceso.
type MemoryNamespace struct {
	mu         sync.Mutex
	regions    map[string]*memoryRegion
	semaphores map[string]*MemorySemaphore
}

// NewMemoryNamespace crea un namespace vacío.
func NewMemoryNamespace() *MemoryNamespace {
	return &MemoryNamespace{
		regions:    make(map[string]*memoryRegion),
		semaphores: make(map[string]*MemorySemaphore),
	}
}

// OpenRegion crea o abre una región.
func (n *MemoryNamespace) OpenRegion(name string, size int) (Region, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if r, ok := n.regions[name]; ok {
		if len(r.buf) < size {
			return nil, fmt.Errorf("region %s exists with size %d < %d", name, len(r.buf), size)
		}
		return r, nil
	}
	r := &memoryRegion{buf: make([]byte, size)}
	n.regions[name] = r
	return r, nil
}

// OpenSemaphore crea o abre un semáforo. Si ya existe, initial y max se ignoran
// (misma semántica que CreateSemaphore).
func (n *MemoryNamespace) OpenSemaphore(name string, initial, max int32) (Semaphore, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if s, ok := n.semaphores[name]; ok {
		return s, nil
	}
	if max <= 0 || initial < 0 || initial > max {
		return nil, fmt.Errorf("invalid semaphore counts initial=%d max=%d", initial, max)
	}
	s := NewMemorySemaphore(initial, max)
	n.semaphores[name] = s
	return s, nil
}

// Semaphore retorna el semáforo con nombre si ya fue abierto.
func (n *MemoryNamespace) Semaphore(name string) (*MemorySemaphore, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.semaphores[name]
	return s, ok
}

type memoryRegion struct {
	buf []byte
}

func (r *memoryRegion) Bytes() []byte { return r.buf }
func (r *memoryRegion) Close() error  { return nil }

// MemorySemaphore es un semáforo contador en proceso.
type MemorySemaphore struct {
	mu     sync.Mutex
	count  int32
	max    int32
	notify chan struct{}
}

// NewMemorySemaphore crea un semáforo con cuenta inicial y máxima.
func NewMemorySemaphore(initial, max int32) *MemorySemaphore {
	return &MemorySemaphore{
		count:  initial,
		max:    max,
		notify: make(chan struct{}, 1),
	}
}

// Wait decrementa la cuenta esperando hasta timeout.
func (s *MemorySemaphore) Wait(timeout time.Duration) (bool, error) {
	if s.tryAcquire() {
		return true, nil
	}
	if timeout <= 0 {
		return false, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-s.notify:
			if s.tryAcquire() {
				return true, nil
			}
		case <-timer.C:
			return s.tryAcquire(), nil
		}
	}
}

func (s *MemorySemaphore) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return false
	}
	s.count--
	if s.count > 0 {
		s.wake()
	}
	return true
}

// Release incrementa la cuenta. Retorna ErrSemaphoreFull en la cuenta máxima.
func (s *MemorySemaphore) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count >= s.max {
		return ErrSemaphoreFull
	}
	s.count++
	s.wake()
	return nil
}

func (s *MemorySemaphore) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Count retorna la cuenta actual.
func (s *MemorySemaphore) Count() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Close no libera nada: el semáforo vive mientras viva el namespace.
func (s *MemorySemaphore) Close() error { return nil }
