package domain

import "strings"

// EventKind identifica el tipo de callback que emite el script Lua de QUIK.
//
// El valor es el tag canónico (en minúsculas) del campo `cmd`.
type EventKind string

// Eventos de datos.
const (
	EventNewCandle            EventKind = "newcandle"
	EventOrder                EventKind = "onorder"
	EventTrade                EventKind = "ontrade"
	EventTransReply           EventKind = "ontransreply"
	EventStopOrder            EventKind = "onstoporder"
	EventAllTrade             EventKind = "onalltrade"
	EventQuote                EventKind = "onquote"
	EventParam                EventKind = "onparam"
	EventAccountBalance       EventKind = "onaccountbalance"
	EventAccountPosition      EventKind = "onaccountposition"
	EventDepoLimit            EventKind = "ondepolimit"
	EventDepoLimitDelete      EventKind = "ondepolimitdelete"
	EventFirm                 EventKind = "onfirm"
	EventFuturesClientHolding EventKind = "onfuturesclientholding"
	EventFuturesLimitChange   EventKind = "onfutureslimitchange"
	EventFuturesLimitDelete   EventKind = "onfutureslimitdelete"
	EventMoneyLimit           EventKind = "onmoneylimit"
	EventMoneyLimitDelete     EventKind = "onmoneylimitdelete"
)

// Eventos de ciclo de vida del terminal y del script.
const (
	EventConnected    EventKind = "onconnected"
	EventDisconnected EventKind = "ondisconnected"
	EventInit         EventKind = "oninit"
	EventCleanUp      EventKind = "oncleanup"
	EventClose        EventKind = "onclose"
	EventStop         EventKind = "onstop"
)

// Eventos sintetizados localmente por el transporte. No tienen tag en el wire.
const (
	EventConnectedToPeer      EventKind = "connected-to-peer"
	EventDisconnectedFromPeer EventKind = "disconnected-from-peer"
)

var wireEvents = map[string]EventKind{}

// ignoredCommands son callbacks conocidos que el transporte descarta sin
// reportarlos como desconocidos.
var ignoredCommands = map[string]struct{}{
	"onnegdeal":  {},
	"onnegtrade": {},
}

func init() {
	for _, k := range []EventKind{
		EventNewCandle, EventOrder, EventTrade, EventTransReply, EventStopOrder,
		EventAllTrade, EventQuote, EventParam, EventAccountBalance, EventAccountPosition,
		EventDepoLimit, EventDepoLimitDelete, EventFirm, EventFuturesClientHolding,
		EventFuturesLimitChange, EventFuturesLimitDelete, EventMoneyLimit, EventMoneyLimitDelete,
		EventConnected, EventDisconnected, EventInit, EventCleanUp, EventClose, EventStop,
	} {
		wireEvents[string(k)] = k
	}
}

// EventKindFromCommand resuelve el tag `cmd` (case-insensitive) a un EventKind.
//
// Los eventos sintetizados localmente nunca se resuelven desde el wire.
func EventKindFromCommand(command string) (EventKind, bool) {
	k, ok := wireEvents[strings.ToLower(strings.TrimSpace(command))]
	return k, ok
}

// IsIgnoredCommand indica si el callback es conocido pero no se despacha.
func IsIgnoredCommand(command string) bool {
	_, ok := ignoredCommands[strings.ToLower(strings.TrimSpace(command))]
	return ok
}

// IsLifecycle indica si el evento es de ciclo de vida (sin payload de datos).
func (k EventKind) IsLifecycle() bool {
	switch k {
	case EventConnected, EventDisconnected, EventInit, EventCleanUp, EventClose, EventStop,
		EventConnectedToPeer, EventDisconnectedFromPeer:
		return true
	}
	return false
}

// String implementa fmt.Stringer.
func (k EventKind) String() string {
	return string(k)
}

// AllEventKinds retorna el conjunto cerrado de eventos despachables.
func AllEventKinds() []EventKind {
	kinds := make([]EventKind, 0, len(wireEvents)+2)
	for _, k := range wireEvents {
		kinds = append(kinds, k)
	}
	return append(kinds, EventConnectedToPeer, EventDisconnectedFromPeer)
}
