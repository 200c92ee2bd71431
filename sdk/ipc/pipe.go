package ipc

import (
	"context"
	"net"
	"strings"
	"time"
)

// Pipe define la interfaz de un stream bidireccional con deadlines.
//
// net.Conn la satisface, tanto para TCP como para Named Pipes de Windows.
type Pipe interface {
	// Read lee datos del pipe.
	Read(p []byte) (n int, err error)

	// Write escribe datos al pipe.
	Write(p []byte) (n int, err error)

	// Close cierra el pipe y libera recursos.
	Close() error

	// SetReadDeadline establece el deadline para operaciones de lectura.
	SetReadDeadline(t time.Time) error

	// SetWriteDeadline establece el deadline para operaciones de escritura.
	SetWriteDeadline(t time.Time) error
}

// Dialer abre conexiones salientes hacia el script Lua.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// PipePrefix es el prefijo de las direcciones de Named Pipes de Windows.
const PipePrefix = `\\.\pipe\`

// IsPipeAddress indica si address apunta a un Named Pipe.
func IsPipeAddress(address string) bool {
	return strings.HasPrefix(address, PipePrefix)
}

// PipeConfig configuración de un canal line-delimited.
type PipeConfig struct {
	// Charset del stream entrante ("utf-8", "cp1251", ...). Vacío = utf-8.
	Charset string

	// MaxLineSize tamaño máximo de una línea (bytes).
	MaxLineSize int

	// ReadTimeout deadline por lectura (0 = sin timeout).
	ReadTimeout time.Duration

	// WriteTimeout deadline por escritura (0 = sin timeout).
	WriteTimeout time.Duration
}

// DefaultPipeConfig retorna la configuración por defecto del protocolo QUIK#:
// entrada en cp1251, líneas de hasta 32MB y sin deadlines (la cancelación se
// hace cerrando la conexión).
func DefaultPipeConfig() *PipeConfig {
	return &PipeConfig{
		Charset:     "cp1251",
		MaxLineSize: 32 * 1024 * 1024,
	}
}
