package utils

import (
	"bytes"
	"encoding/json"
)

// MarshalJSON serializa cualquier valor a JSON.
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// UnmarshalJSON deserializa JSON a un valor.
func UnmarshalJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// IsJSONNull indica si el raw JSON está vacío o es el literal null.
func IsJSONNull(data []byte) bool {
	b := bytes.TrimSpace(data)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

// EnsureNewlineBytes asegura que los bytes terminen con \n (line-delimited).
//
// Example:
//
//	line := utils.EnsureNewlineBytes([]byte(`{"cmd":"ping"}`))
//	// => {"cmd":"ping"}\n
func EnsureNewlineBytes(data []byte) []byte {
	if len(data) == 0 || data[len(data)-1] != '\n' {
		return append(data, '\n')
	}
	return data
}

// Preview devuelve los primeros max bytes de b, seguros para log.
func Preview(b []byte, max int) string {
	if len(b) == 0 {
		return ""
	}
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
