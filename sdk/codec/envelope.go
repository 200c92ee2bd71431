package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Agremond/QuickSharp/sdk/domain"
	"github.com/Agremond/QuickSharp/sdk/utils"
)

// Envelope es la única unidad que cruza la frontera con el script Lua.
//
// Las claves JSON son las que emite y espera el script QUIK#:
//
//	{"id":42,"cmd":"getSecurityInfo","t":1698345601234,"v":"2023-10-26T18:40:46Z","data":...,"luaError":""}
type Envelope struct {
	// ID es el correlation id; 0 para callbacks.
	ID int64 `json:"id,omitempty"`

	// Command identifica la operación o el tipo de evento.
	Command string `json:"cmd"`

	// CreatedAt es el instante de creación en ms Unix.
	CreatedAt int64 `json:"t"`

	// ValidUntil es el deadline absoluto (UTC) opcional.
	ValidUntil *time.Time `json:"v,omitempty"`

	// Data es el payload. Al salir lleva el valor del caller; al decodificar
	// queda como json.RawMessage hasta DecodeData.
	Data interface{} `json:"data,omitempty"`

	// Error es el mensaje de error del lado Lua.
	Error string `json:"luaError,omitempty"`
}

// NewEnvelope construye un envelope de request con timestamp actual.
func NewEnvelope(id int64, command string, data interface{}) *Envelope {
	return &Envelope{
		ID:        id,
		Command:   command,
		CreatedAt: utils.NowUnixMilli(),
		Data:      data,
	}
}

// WithValidUntil fija el deadline absoluto del envelope en UTC.
func (e *Envelope) WithValidUntil(t time.Time) *Envelope {
	utc := t.UTC()
	e.ValidUntil = &utc
	return e
}

// Expired indica si el deadline del envelope ya pasó en now.
func (e *Envelope) Expired(now time.Time) bool {
	return e.ValidUntil != nil && now.After(*e.ValidUntil)
}

// IsCallback indica si el envelope es una notificación push (sin correlation id positivo).
func (e *Envelope) IsCallback() bool {
	return e.ID <= 0
}

// Created retorna CreatedAt como time.Time.
func (e *Envelope) Created() time.Time {
	return utils.UnixMilliToTime(e.CreatedAt)
}

// Encode serializa el envelope a JSON en una sola línea.
//
// encoding/json escapa \n dentro de strings, por lo que la salida nunca
// contiene un salto de línea crudo.
func Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, domain.NewError(domain.ErrDecodeError, "nil envelope")
	}
	data, err := utils.MarshalJSON(env)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDecodeError, "encode envelope", err).WithCall(env.Command, env.ID)
	}
	return data, nil
}

// wireEnvelope evita que Data se decodifique a map genérico.
type wireEnvelope struct {
	ID         *json.Number    `json:"id"`
	Command    string          `json:"cmd"`
	CreatedAt  json.Number     `json:"t"`
	ValidUntil *time.Time      `json:"v"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"luaError"`
}

// Decode parsea bytes a un Envelope. El payload queda como json.RawMessage.
func Decode(data []byte) (*Envelope, error) {
	b := bytes.TrimSpace(data)
	if len(b) == 0 {
		return nil, domain.NewError(domain.ErrDecodeError, "empty frame")
	}

	var w wireEnvelope
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return nil, domain.WrapError(domain.ErrDecodeError, "decode envelope", err).
			WithDetail("preview", utils.Preview(b, 160))
	}

	env := &Envelope{
		Command:    w.Command,
		ValidUntil: w.ValidUntil,
		Error:      w.Error,
	}
	if w.ID != nil {
		id, err := parseInteger(*w.ID)
		if err != nil {
			return nil, domain.WrapError(domain.ErrDecodeError, "decode correlation id", err)
		}
		env.ID = id
	}
	if w.CreatedAt != "" {
		ts, err := parseInteger(w.CreatedAt)
		if err != nil {
			return nil, domain.WrapError(domain.ErrDecodeError, "decode created_at", err)
		}
		env.CreatedAt = ts
	}
	if !utils.IsJSONNull(w.Data) {
		env.Data = w.Data
	}
	return env, nil
}

// parseInteger acepta enteros y números con parte decimal nula (Lua serializa
// algunos enteros como 42.0).
func parseInteger(n json.Number) (int64, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("not an integer: %s", n)
	}
	return int64(f), nil
}
