// Package shm implementa el canal de memoria compartida del protocolo QUIK#.
//
// Cada lane (request, response, callback) es una región con nombre más dos
// semáforos con nombre: la señal que el escritor libera tras escribir y el
// mutex que protege la región mientras se escribe o se lee.
//
// # Frame
//
// Header fijo de 24 bytes little-endian seguido del body:
//
//	u32 magic (0x5155494B) | u32 version (2) | u32 correlation_id
//	u32 message_type (1=request, 2=response) | u32 body_length | u32 reserved (0)
//
// # Uso
//
//	ns, err := shm.DefaultNamespace() // objetos del kernel en Windows
//	lane, err := shm.OpenLane(ns, shm.RequestLane)
//	defer lane.Close()
//
//	err = lane.Write(ctx, 42, shm.MessageTypeRequest, body)
//
// En plataformas no-Windows DefaultNamespace retorna ErrUnsupportedPlatform;
// MemoryNamespace ofrece los mismos objetos dentro del proceso.
package shm
