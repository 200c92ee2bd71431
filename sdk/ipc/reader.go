package ipc

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LookupCharset resuelve un nombre de charset ("cp1251", "windows-1251",
// "utf-8", ...). Vacío equivale a utf-8.
func LookupCharset(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", name, err)
	}
	return enc, nil
}

// LineReader lee líneas terminadas en \n desde un Pipe, transcodificando el
// charset de entrada a UTF-8.
type LineReader struct {
	pipe    Pipe
	scanner *bufio.Scanner
	timeout time.Duration
}

// NewLineReader crea un LineReader según config (nil = DefaultPipeConfig).
//
// Example:
//
//	reader, err := ipc.NewLineReader(conn, nil) // cp1251 -> utf-8
//	line, err := reader.ReadLine()
func NewLineReader(pipe Pipe, config *PipeConfig) (*LineReader, error) {
	if config == nil {
		config = DefaultPipeConfig()
	}
	enc, err := LookupCharset(config.Charset)
	if err != nil {
		return nil, err
	}

	var src io.Reader = pipe
	if enc != unicode.UTF8 {
		src = transform.NewReader(pipe, enc.NewDecoder())
	}

	maxLine := config.MaxLineSize
	if maxLine <= 0 {
		maxLine = DefaultPipeConfig().MaxLineSize
	}
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	return &LineReader{
		pipe:    pipe,
		scanner: scanner,
		timeout: config.ReadTimeout,
	}, nil
}

// ReadLine lee la siguiente línea no vacía, sin el \n (ni \r) final.
//
// Retorna io.EOF cuando el peer cierra el stream.
func (lr *LineReader) ReadLine() ([]byte, error) {
	for {
		if lr.timeout > 0 {
			if err := lr.pipe.SetReadDeadline(time.Now().Add(lr.timeout)); err != nil {
				return nil, err
			}
		}

		if !lr.scanner.Scan() {
			if err := lr.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}

		line := bytes.TrimRight(lr.scanner.Bytes(), "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		// Copiar para evitar reutilización del buffer interno
		result := make([]byte, len(line))
		copy(result, line)
		return result, nil
	}
}
