package mqtterr

import "strconv"

// Kind is a protocol-independent error classification with a stable numeric code.
//
// The numeric values are the reason codes used by the Paho client family, so a
// code raised by either protocol engine can be looked up directly.
type Kind int

// Client-level kinds.
const (
	ClientException            Kind = 0
	ClientTimeout              Kind = 32000
	NoMessageIDsAvailable      Kind = 32001
	WriteTimeout               Kind = 32002
	ClientAlreadyConnected     Kind = 32100
	ClientAlreadyDisconnected  Kind = 32101
	ClientDisconnecting        Kind = 32102
	ServerConnectError         Kind = 32103
	ClientNotConnected         Kind = 32104
	SocketFactoryMismatch      Kind = 32105
	SSLConfigError             Kind = 32106
	ClientDisconnectProhibited Kind = 32107
	InvalidMessage             Kind = 32108
	ConnectionLost             Kind = 32109
	ConnectInProgress          Kind = 32110
	ClientClosed               Kind = 32111
	TokenInUse                 Kind = 32201
	MaxInflight                Kind = 32202
	DisconnectedBufferFull     Kind = 32203
)

// Connection-level kinds. These share their values with the MQTT 3.1.1
// CONNACK return codes.
const (
	InvalidProtocolVersion Kind = 1
	InvalidClientID        Kind = 2
	BrokerUnavailable      Kind = 3
)

// MQTT 5 packet reason kinds.
const (
	InvalidIdentifier          Kind = 50000
	InvalidReturnCode          Kind = 50001
	MalformedPacket            Kind = 50002
	UnsupportedProtocolVersion Kind = 50003
	InvalidTopicAlias          Kind = 50004
	DuplicateProperty          Kind = 50005
)

// Security kinds (CONNACK return codes 4 and 5).
const (
	AuthenticationFailed Kind = 4
	NotAuthorized        Kind = 5
)

// Persistence and generic kinds.
const (
	PersistenceInUse Kind = 32200
	UnexpectedError  Kind = 6
	SubscribeFailed  Kind = 80
)

// Unknown classifies codes that no kind owns. The raw code is kept on the Error.
const Unknown Kind = -1

// Scope says which protocol generation can raise a kind.
type Scope int

const (
	// ScopeAny kinds can come from either protocol generation.
	ScopeAny Scope = iota
	// ScopeLegacy kinds are only raised under MQTT 3.1.1.
	ScopeLegacy
	// ScopeModern kinds are only raised under MQTT 5.
	ScopeModern
	// ScopeInternal kinds are raised by the client library itself.
	ScopeInternal
)

type kindInfo struct {
	name  string
	scope Scope
}

var kinds = map[Kind]kindInfo{
	ClientException:            {"CLIENT_EXCEPTION", ScopeInternal},
	ClientTimeout:              {"CLIENT_TIMEOUT", ScopeInternal},
	NoMessageIDsAvailable:      {"NO_MESSAGE_IDS_AVAILABLE", ScopeInternal},
	WriteTimeout:               {"WRITE_TIMEOUT", ScopeInternal},
	ClientAlreadyConnected:     {"CLIENT_ALREADY_CONNECTED", ScopeInternal},
	ClientAlreadyDisconnected:  {"CLIENT_ALREADY_DISCONNECTED", ScopeInternal},
	ClientDisconnecting:        {"CLIENT_DISCONNECTING", ScopeInternal},
	ServerConnectError:         {"SERVER_CONNECT_ERROR", ScopeAny},
	ClientNotConnected:         {"CLIENT_NOT_CONNECTED", ScopeInternal},
	SocketFactoryMismatch:      {"SOCKET_FACTORY_MISMATCH", ScopeAny},
	SSLConfigError:             {"SSL_CONFIG_ERROR", ScopeAny},
	ClientDisconnectProhibited: {"CLIENT_DISCONNECT_PROHIBITED", ScopeInternal},
	InvalidMessage:             {"INVALID_MESSAGE", ScopeInternal},
	ConnectionLost:             {"CONNECTION_LOST", ScopeAny},
	ConnectInProgress:          {"CONNECT_IN_PROGRESS", ScopeInternal},
	ClientClosed:               {"CLIENT_CLOSED", ScopeInternal},
	TokenInUse:                 {"TOKEN_INUSE", ScopeInternal},
	MaxInflight:                {"MAX_INFLIGHT", ScopeInternal},
	DisconnectedBufferFull:     {"DISCONNECTED_BUFFER_FULL", ScopeInternal},

	InvalidProtocolVersion: {"INVALID_PROTOCOL_VERSION", ScopeLegacy},
	InvalidClientID:        {"INVALID_CLIENT_ID", ScopeAny},
	BrokerUnavailable:      {"BROKER_UNAVAILABLE", ScopeAny},

	InvalidIdentifier:          {"INVALID_IDENTIFIER", ScopeModern},
	InvalidReturnCode:          {"INVALID_RETURN_CODE", ScopeModern},
	MalformedPacket:            {"MALFORMED_PACKET", ScopeModern},
	UnsupportedProtocolVersion: {"UNSUPPORTED_PROTOCOL_VERSION", ScopeModern},
	InvalidTopicAlias:          {"INVALID_TOPIC_ALIAS", ScopeModern},
	DuplicateProperty:          {"DUPLICATE_PROPERTY", ScopeModern},

	AuthenticationFailed: {"AUTHENTICATION_FAILED", ScopeAny},
	NotAuthorized:        {"NOT_AUTHORIZED", ScopeAny},

	PersistenceInUse: {"PERSISTENCE_IN_USE", ScopeInternal},
	UnexpectedError:  {"UNEXPECTED_ERROR", ScopeAny},
	SubscribeFailed:  {"SUBSCRIBE_FAILED", ScopeAny},
}

// Lookup returns the kind that owns code. The second result is false when
// the code is unmapped; callers then classify it as Unknown.
func Lookup(code int) (Kind, bool) {
	k := Kind(code)
	if _, ok := kinds[k]; !ok {
		return Unknown, false
	}
	return k, true
}

// Code returns the stable numeric code of the kind.
func (k Kind) Code() int {
	return int(k)
}

// Scope returns the protocol generation that can raise the kind.
// Unknown is reported as ScopeAny.
func (k Kind) Scope() Scope {
	if info, ok := kinds[k]; ok {
		return info.scope
	}
	return ScopeAny
}

// String returns the symbolic name, e.g. "CLIENT_NOT_CONNECTED".
func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	if k == Unknown {
		return "UNKNOWN"
	}
	return "KIND(" + strconv.Itoa(int(k)) + ")"
}

// Error lets a bare Kind be used as an errors.Is target.
func (k Kind) Error() string {
	return "mqtt: " + k.String()
}
