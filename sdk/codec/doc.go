// Package codec serializa el Envelope que intercambia el host con el script
// Lua de QUIK, tanto para el socket (una línea JSON por envelope) como para
// los lanes de memoria compartida (cuerpo del frame).
//
// El payload queda sin tipar hasta que el caller lo decodifica con DecodeData
// o Data[T]:
//
//	env, err := codec.Decode(line)
//	if err != nil {
//	    return err
//	}
//	pong, err := codec.Data[string](env)
package codec
