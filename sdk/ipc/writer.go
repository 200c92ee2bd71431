package ipc

import (
	"fmt"
	"sync"
	"time"

	"github.com/Agremond/QuickSharp/sdk/utils"
)

// LineWriter escribe líneas UTF-8 terminadas en \n a un Pipe.
//
// Serializa writes para thread-safety.
type LineWriter struct {
	pipe    Pipe
	mu      sync.Mutex
	timeout time.Duration
}

// NewLineWriter crea un LineWriter según config (nil = DefaultPipeConfig).
func NewLineWriter(pipe Pipe, config *PipeConfig) *LineWriter {
	if config == nil {
		config = DefaultPipeConfig()
	}
	return &LineWriter{
		pipe:    pipe,
		timeout: config.WriteTimeout,
	}
}

// WriteLine escribe una línea de bytes.
//
// Agrega \n automáticamente si no está presente.
func (lw *LineWriter) WriteLine(data []byte) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	data = utils.EnsureNewlineBytes(data)

	if lw.timeout > 0 {
		if err := lw.pipe.SetWriteDeadline(time.Now().Add(lw.timeout)); err != nil {
			return err
		}
	}

	n, err := lw.pipe.Write(data)
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	return nil
}
