//go:build windows
// +build windows

package shm

import (
	"fmt"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	waitObject0      = 0x00000000
	waitTimeout      = 0x00000102
	errTooManyPosts  = syscall.Errno(298)
	fileMapReadWrite = windows.FILE_MAP_READ | windows.FILE_MAP_WRITE
)

var (
	kernel32             = windows.NewLazySystemDLL("kernel32.dll")
	procCreateSemaphoreW = kernel32.NewProc("CreateSemaphoreW")
	procReleaseSemaphore = kernel32.NewProc("ReleaseSemaphore")
)

// KernelNamespace implementa Namespace con objetos con nombre del kernel de
// Windows (CreateFileMapping + CreateSemaphore). Crea el objeto si no existe y
// lo abre si el script Lua ya lo creó.
type KernelNamespace struct{}

// DefaultNamespace retorna el namespace de la plataforma.
func DefaultNamespace() (Namespace, error) {
	return KernelNamespace{}, nil
}

// OpenRegion crea o abre un file mapping respaldado por el pagefile.
func (KernelNamespace) OpenRegion(name string, size int) (Region, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE,
		uint32(uint64(size)>>32), uint32(size), namePtr)
	if err != nil {
		return nil, fmt.Errorf("CreateFileMapping %s: %w", name, err)
	}
	addr, err := windows.MapViewOfFile(h, fileMapReadWrite, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("MapViewOfFile %s: %w", name, err)
	}
	return &kernelRegion{
		handle: h,
		addr:   addr,
		buf:    unsafe.Slice((*byte)(unsafe.Pointer(addr)), size),
	}, nil
}

// OpenSemaphore crea o abre un semáforo con nombre.
func (KernelNamespace) OpenSemaphore(name string, initial, max int32) (Semaphore, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	r1, _, e1 := procCreateSemaphoreW.Call(0, uintptr(initial), uintptr(max), uintptr(unsafe.Pointer(namePtr)))
	if r1 == 0 {
		return nil, fmt.Errorf("CreateSemaphoreW %s: %w", name, e1)
	}
	return &kernelSemaphore{handle: windows.Handle(r1)}, nil
}

type kernelRegion struct {
	once   sync.Once
	handle windows.Handle
	addr   uintptr
	buf    []byte
}

func (r *kernelRegion) Bytes() []byte { return r.buf }

func (r *kernelRegion) Close() error {
	var err error
	r.once.Do(func() {
		r.buf = nil
		if uerr := windows.UnmapViewOfFile(r.addr); uerr != nil {
			err = uerr
		}
		if cerr := windows.CloseHandle(r.handle); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

type kernelSemaphore struct {
	once   sync.Once
	handle windows.Handle
}

func (s *kernelSemaphore) Wait(timeout time.Duration) (bool, error) {
	ms := uint32(0)
	if timeout > 0 {
		ms = uint32(timeout / time.Millisecond)
	}
	event, err := windows.WaitForSingleObject(s.handle, ms)
	if err != nil {
		return false, err
	}
	switch event {
	case waitObject0:
		return true, nil
	case waitTimeout:
		return false, nil
	default:
		return false, fmt.Errorf("WaitForSingleObject returned 0x%x", event)
	}
}

func (s *kernelSemaphore) Release() error {
	r1, _, e1 := procReleaseSemaphore.Call(uintptr(s.handle), 1, 0)
	if r1 == 0 {
		if e1 == errTooManyPosts {
			return ErrSemaphoreFull
		}
		return fmt.Errorf("ReleaseSemaphore: %w", e1)
	}
	return nil
}

func (s *kernelSemaphore) Close() error {
	var err error
	s.once.Do(func() {
		err = windows.CloseHandle(s.handle)
	})
	return err
}
