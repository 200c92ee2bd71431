package etcd

import "errors"

// ErrKeyNotFound indica que la clave no existe en el namespace.
var ErrKeyNotFound = errors.New("key not found")
