package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-clientwrap/internal/mqtterr"
)

// ReasonError is the failure every engine raises. Code is a taxonomy code
// when the engine could classify the failure, otherwise the raw protocol
// reason code.
type ReasonError struct {
	Code    int
	Message string
	Err     error
}

func (e *ReasonError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("reason code %d", e.Code)
	}
}

func (e *ReasonError) Unwrap() error { return e.Err }

// ReasonCode lets mqtterr.Translate classify the failure.
func (e *ReasonError) ReasonCode() int { return e.Code }

func reasonError(kind mqtterr.Kind, msg string, err error) *ReasonError {
	return &ReasonError{Code: kind.Code(), Message: msg, Err: err}
}

// waitError classifies a failure that ended a wait on ctx.
func waitError(ctx context.Context, op string, err error) *ReasonError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return reasonError(mqtterr.ClientTimeout, op+" timed out", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return reasonError(mqtterr.ClientClosed, op+" cancelled", err)
	}
	return reasonError(mqtterr.ClientException, op+" failed", err)
}

// MQTT 5 reason codes with a taxonomy counterpart.
var modernReasons = map[byte]mqtterr.Kind{
	0x81: mqtterr.MalformedPacket,
	0x84: mqtterr.UnsupportedProtocolVersion,
	0x85: mqtterr.InvalidClientID,
	0x86: mqtterr.AuthenticationFailed,
	0x87: mqtterr.NotAuthorized,
	0x88: mqtterr.BrokerUnavailable,
	0x89: mqtterr.BrokerUnavailable,
	0x8C: mqtterr.AuthenticationFailed,
	0x94: mqtterr.InvalidTopicAlias,
}

// modernCode maps an MQTT 5 reason code to a taxonomy code. 0x80
// (unspecified) takes the operation's fallback; anything else without a
// counterpart is returned raw so the taxonomy classifies it as Unknown.
func modernCode(reason byte, fallback mqtterr.Kind) int {
	if kind, ok := modernReasons[reason]; ok {
		return kind.Code()
	}
	if reason == 0x80 {
		return fallback.Code()
	}
	return int(reason)
}

// MQTT 3.1.1 CONNACK return codes, plus the two pseudo codes the Paho
// engine uses for failures before a CONNACK arrives.
const (
	legacyAccepted          = 0x00
	legacyBadProtocol       = 0x01
	legacyIDRejected        = 0x02
	legacyServerUnavailable = 0x03
	legacyBadCredentials    = 0x04
	legacyNotAuthorised     = 0x05
	legacyNetworkError      = 0xFE
	legacyProtocolViolation = 0xFF
)

// legacyConnectCode maps a Paho CONNACK return code to a taxonomy code.
// Codes 1 to 5 share their values with the taxonomy.
func legacyConnectCode(rc byte) int {
	switch rc {
	case legacyBadProtocol, legacyIDRejected, legacyServerUnavailable, legacyBadCredentials, legacyNotAuthorised:
		return int(rc)
	case legacyProtocolViolation:
		return mqtterr.UnexpectedError.Code()
	default:
		return mqtterr.ServerConnectError.Code()
	}
}
