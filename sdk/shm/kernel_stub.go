//go:build !windows
// +build !windows

package shm

// DefaultNamespace retorna error en plataformas no-Windows. Usar
// MemoryNamespace para desarrollo y tests.
func DefaultNamespace() (Namespace, error) {
	return nil, ErrUnsupportedPlatform
}
