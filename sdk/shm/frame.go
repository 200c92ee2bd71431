package shm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Constantes del frame compartido con el script Lua (little-endian).
const (
	Magic      uint32 = 0x5155494B // "QUIK"
	Version    uint32 = 2
	HeaderSize        = 24 // 6 × uint32

	MessageTypeRequest  uint32 = 1
	MessageTypeResponse uint32 = 2
)

// Offsets de los campos del header.
const (
	offMagic         = 0
	offVersion       = 4
	offCorrelationID = 8
	offMessageType   = 12
	offBodyLength    = 16
	offReserved      = 20
)

var (
	// ErrBadMagic indica un frame vacío, heartbeat o corrupto.
	ErrBadMagic = errors.New("shm: bad magic")
	// ErrBadVersion indica un peer con otra versión del protocolo.
	ErrBadVersion = errors.New("shm: unsupported frame version")
	// ErrBadLength indica un body_length fuera de la capacidad del región.
	ErrBadLength = errors.New("shm: invalid body length")
	// ErrFrameTooLarge indica un body que no cabe en la región.
	ErrFrameTooLarge = errors.New("shm: body exceeds region capacity")
)

// Header es el header fijo de 24 bytes de cada frame.
type Header struct {
	Magic         uint32
	Version       uint32
	CorrelationID uint32
	MessageType   uint32
	BodyLength    uint32
	Reserved      uint32
}

// Put escribe el header en buf (al menos HeaderSize bytes).
func (h Header) Put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[offMagic:], h.Magic)
	binary.LittleEndian.PutUint32(buf[offVersion:], h.Version)
	binary.LittleEndian.PutUint32(buf[offCorrelationID:], h.CorrelationID)
	binary.LittleEndian.PutUint32(buf[offMessageType:], h.MessageType)
	binary.LittleEndian.PutUint32(buf[offBodyLength:], h.BodyLength)
	binary.LittleEndian.PutUint32(buf[offReserved:], h.Reserved)
}

// ParseHeader lee el header de buf sin validarlo.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("shm: buffer too small for header: %d bytes", len(buf))
	}
	return Header{
		Magic:         binary.LittleEndian.Uint32(buf[offMagic:]),
		Version:       binary.LittleEndian.Uint32(buf[offVersion:]),
		CorrelationID: binary.LittleEndian.Uint32(buf[offCorrelationID:]),
		MessageType:   binary.LittleEndian.Uint32(buf[offMessageType:]),
		BodyLength:    binary.LittleEndian.Uint32(buf[offBodyLength:]),
		Reserved:      binary.LittleEndian.Uint32(buf[offReserved:]),
	}, nil
}

// MaxBody retorna el body máximo que admite una región de tamaño size.
func MaxBody(size int) int {
	if size <= HeaderSize {
		return 0
	}
	return size - HeaderSize
}

// WriteFrame escribe header + body en region.
//
// Los bytes que quedaron de un body anterior más largo se ponen en cero.
// Nunca escribe parcialmente: si el body no cabe retorna ErrFrameTooLarge sin
// tocar la región.
func WriteFrame(region []byte, correlationID, messageType uint32, body []byte) error {
	if len(body) > MaxBody(len(region)) {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(body), MaxBody(len(region)))
	}

	prev, _ := ParseHeader(region)

	n := copy(region[HeaderSize:], body)
	if prev.Magic == Magic && int(prev.BodyLength) > n && int(prev.BodyLength) <= MaxBody(len(region)) {
		clear(region[HeaderSize+n : HeaderSize+int(prev.BodyLength)])
	}

	Header{
		Magic:         Magic,
		Version:       Version,
		CorrelationID: correlationID,
		MessageType:   messageType,
		BodyLength:    uint32(len(body)),
	}.Put(region)
	return nil
}

// ReadFrame valida el header de region y retorna una copia del body.
//
// Nunca lee más allá de body_length aunque la región conserve bytes de un
// frame anterior.
func ReadFrame(region []byte) (Header, []byte, error) {
	h, err := ParseHeader(region)
	if err != nil {
		return h, nil, err
	}
	if h.Magic != Magic {
		return h, nil, ErrBadMagic
	}
	if h.Version != Version {
		return h, nil, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	if h.BodyLength == 0 || int(h.BodyLength) > MaxBody(len(region)) {
		return h, nil, fmt.Errorf("%w: %d", ErrBadLength, h.BodyLength)
	}

	body := make([]byte, h.BodyLength)
	copy(body, region[HeaderSize:HeaderSize+int(h.BodyLength)])
	return h, body, nil
}
