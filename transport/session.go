package transport

import (
	"strconv"
	"time"
)

// NewSessionID retorna el id de sesión (yyMMddHHmmss) para now.
func NewSessionID(now time.Time) string {
	return now.Format("060102150405")
}

// PrependWithSessionID compone "<sessionID>.<id>", usado como identificador
// externo único de una transacción dentro de la sesión.
func PrependWithSessionID(sessionID string, id int64) string {
	return sessionID + "." + strconv.FormatInt(id, 10)
}
