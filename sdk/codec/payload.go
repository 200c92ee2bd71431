package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/Agremond/QuickSharp/sdk/domain"
	"github.com/Agremond/QuickSharp/sdk/utils"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

var protoUnmarshal = protojson.UnmarshalOptions{DiscardUnknown: true}

// DecodeData decodifica el payload del envelope en target (puntero).
//
// Reglas:
//   - luaError no vacío: retorna ErrPeerError sin tocar target.
//   - payload ausente o null: target queda en su valor cero, sin error.
//   - payload crudo (json.RawMessage): se decodifica directo en target;
//     protojson si target es proto.Message.
//   - payload ya tipado y asignable a target: se copia directo.
//   - cualquier otro valor: se re-serializa y se decodifica en target.
func DecodeData(env *Envelope, target interface{}) error {
	if env == nil {
		return domain.NewError(domain.ErrDecodeError, "nil envelope")
	}
	if env.Error != "" {
		return domain.NewError(domain.ErrPeerError, env.Error).WithCall(env.Command, env.ID)
	}
	if target == nil {
		return nil
	}

	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return domain.NewError(domain.ErrDecodeError, fmt.Sprintf("target must be a non-nil pointer, got %T", target)).
			WithCall(env.Command, env.ID)
	}

	if env.Data == nil {
		return nil
	}

	var raw []byte
	switch data := env.Data.(type) {
	case json.RawMessage:
		raw = data
	case []byte:
		raw = data
	case protoPayload:
		if mergeProto(target, data.msg) {
			return nil
		}
		encoded, err := protojson.Marshal(data.msg)
		if err != nil {
			return domain.WrapError(domain.ErrDecodeError, "re-encode payload", err).WithCall(env.Command, env.ID)
		}
		raw = encoded
	case proto.Message:
		if mergeProto(target, data) {
			return nil
		}
		encoded, err := protojson.Marshal(data)
		if err != nil {
			return domain.WrapError(domain.ErrDecodeError, "re-encode payload", err).WithCall(env.Command, env.ID)
		}
		raw = encoded
	default:
		// Fast path: el payload ya es del tipo pedido.
		dv := reflect.ValueOf(env.Data)
		elem := rv.Elem()
		if dv.Type().AssignableTo(elem.Type()) {
			elem.Set(dv)
			return nil
		}
		if dv.Kind() == reflect.Pointer && !dv.IsNil() && dv.Elem().Type().AssignableTo(elem.Type()) {
			elem.Set(dv.Elem())
			return nil
		}
		encoded, err := marshalPayload(env.Data)
		if err != nil {
			return domain.WrapError(domain.ErrDecodeError, "re-encode payload", err).WithCall(env.Command, env.ID)
		}
		raw = encoded
	}

	if utils.IsJSONNull(raw) {
		return nil
	}
	if err := unmarshalPayload(raw, target); err != nil {
		return domain.WrapError(domain.ErrDecodeError, fmt.Sprintf("decode payload into %T", target), err).
			WithCall(env.Command, env.ID).
			WithDetail("preview", utils.Preview(raw, 160))
	}
	return nil
}

// Data decodifica el payload del envelope en un valor de tipo T.
//
// Example:
//
//	pong, err := codec.Data[string](env) // => "Pong"
func Data[T any](env *Envelope) (T, error) {
	var out T
	err := DecodeData(env, &out)
	return out, err
}

// mergeProto copia src en target si ambos son el mismo tipo de mensaje proto.
func mergeProto(target interface{}, src proto.Message) bool {
	m, ok := target.(proto.Message)
	if !ok || m.ProtoReflect().Descriptor() != src.ProtoReflect().Descriptor() {
		return false
	}
	proto.Reset(m)
	proto.Merge(m, src)
	return true
}

// marshalPayload serializa un payload respetando proto.Message.
func marshalPayload(v interface{}) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return protojson.Marshal(m)
	}
	return utils.MarshalJSON(v)
}

func unmarshalPayload(raw []byte, target interface{}) error {
	if m, ok := target.(proto.Message); ok {
		return protoUnmarshal.Unmarshal(raw, m)
	}
	return utils.UnmarshalJSON(raw, target)
}

// protoPayload envuelve un proto.Message para que Encode lo serialice con protojson.
type protoPayload struct {
	msg proto.Message
}

// MarshalJSON implementa json.Marshaler.
func (p protoPayload) MarshalJSON() ([]byte, error) {
	return protojson.Marshal(p.msg)
}

// PayloadOf adapta un request para Encode: los proto.Message se serializan
// con protojson, el resto se deja intacto.
func PayloadOf(v interface{}) interface{} {
	if m, ok := v.(proto.Message); ok && m != nil {
		return protoPayload{msg: m}
	}
	return v
}
