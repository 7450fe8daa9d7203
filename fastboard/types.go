package fastboard

import (
	"errors"
	"fmt"
	"strconv"
)

// Protocol is the bus family a FAST serial port speaks. There are
// exactly two, no other value is representable.
type Protocol int

const (
	NET Protocol = iota
	EXP
)

func (p Protocol) String() string {
	switch p {
	case NET:
		return "NET"
	case EXP:
		return "EXP"
	}
	return fmt.Sprintf("Protocol(%d)", int(p))
}

// Marshallers below allow Protocol to ride in config files and
// JSON payloads as its name instead of a bare int, same scheme as
// front-end facing enums elsewhere.

func (p Protocol) MarshalJSON() ([]byte, error) {
	b, err := p.MarshalText()
	if err == nil {
		b = []byte(fmt.Sprintf("\"%s\"", string(b)))
	}
	return b, err
}

func (p *Protocol) UnmarshalJSON(data []byte) error {
	dataLength := len(data)
	if dataLength < 2 || data[0] != '"' || data[dataLength-1] != '"' {
		return errors.New("Protocol.UnmarshalJSON: Invalid JSON provided")
	}
	return p.UnmarshalText(data[1 : dataLength-1])
}

func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Protocol) UnmarshalText(b []byte) error {
	switch string(b) {
	case "NET":
		*p = NET
		return nil
	case "EXP":
		*p = EXP
		return nil
	}
	i, err := strconv.Atoi(string(b))
	if err == nil && (Protocol(i) == NET || Protocol(i) == EXP) {
		*p = Protocol(i)
		return nil
	}
	return fmt.Errorf("Cannot unmarshall \"%s\" to Protocol. Is it mispelled?", string(b))
}

// BoardInfo describes one EXP bus board found during enumeration.
type BoardInfo struct {
	Address string
	Name    string
	Version string
	// versions present in the firmware catalog for this board, sorted
	// ascending; nil when the catalog has none
	AvailableVersions []string
}

// NodeInfo describes one NET bus node. Replies may carry telemetry
// fields past the three required ones, those are kept in order.
type NodeInfo struct {
	ID       string
	Name     string
	Firmware string
	Extra    []string
}

// FlashStatus is a point-in-time view of the monitor's flash activity,
// pushed to websocket subscribers.
type FlashStatus struct {
	Active      bool
	Target      string
	Path        string
	TotalBytes  int64
	SentBytes   int64
	LastOutcome string
}
