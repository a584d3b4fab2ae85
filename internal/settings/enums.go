package settings

import "fmt"

// QoS is the MQTT delivery guarantee level.
type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2

	// DefaultQoS is used wherever a level is missing or out of range.
	DefaultQoS = AtMostOnce
)

// QoSFromLevel returns the QoS for level, or DefaultQoS when level is not 0, 1 or 2.
func QoSFromLevel(level int) QoS {
	switch level {
	case 0, 1, 2:
		return QoS(level)
	default:
		return DefaultQoS
	}
}

// Level returns the numeric level.
func (q QoS) Level() byte {
	return byte(q)
}

func (q QoS) String() string {
	switch q {
	case AtMostOnce:
		return "at-most-once"
	case AtLeastOnce:
		return "at-least-once"
	case ExactlyOnce:
		return "exactly-once"
	default:
		return fmt.Sprintf("QoS(%d)", byte(q))
	}
}

// ProtocolVersion selects the protocol generation. The values are the MQTT
// protocol level bytes.
type ProtocolVersion int

const (
	Legacy ProtocolVersion = 4 // MQTT 3.1.1
	Modern ProtocolVersion = 5 // MQTT 5

	DefaultVersion = Modern
)

// VersionFromValue returns Legacy for 4, Modern for 5 and DefaultVersion otherwise.
func VersionFromValue(v int) ProtocolVersion {
	switch v {
	case 4:
		return Legacy
	case 5:
		return Modern
	default:
		return DefaultVersion
	}
}

func (v ProtocolVersion) String() string {
	switch v {
	case Legacy:
		return "3.1.1"
	case Modern:
		return "5"
	default:
		return fmt.Sprintf("ProtocolVersion(%d)", int(v))
	}
}
