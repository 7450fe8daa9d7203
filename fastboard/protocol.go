package fastboard

import (
	"fmt"
	"strings"
	"time"
)

// Serial command and token literals for the FAST NET and EXP buses.
// Commands are CR-terminated, replies are free-form text matched by the
// token rules in parse.go.

const (
	CmdID             = "ID:\r"
	CmdBroadcastNodes = "bn:aa55\r"

	// NodeNotFound is the literal a NET controller returns for an NN:
	// query past the last attached node.
	NodeNotFound = "!Node Not Found!"

	// Bootloader completion tokens. The two buses emit different
	// literals, keep them per-channel as observed on hardware.
	AckTokenExp = "!BL2040:02"
	AckTokenNet = "!B:02"
)

// NetControllerBoard is the board type of the NET bus controller, the
// only flash target reachable without an address.
const NetControllerBoard = "FP-CPU-2000"

const (
	// pacing between CR-terminated firmware records, per bus; the
	// boards' flash writes can't keep up with line-rate serial
	PacingExp = time.Millisecond * 200
	PacingNet = time.Millisecond * 400

	ackTimeout    = time.Second * 30
	verifyTimeout = time.Second * 5
	pollInterval  = time.Millisecond * 50

	// settle time after a command before reading its reply
	replyDelay = time.Millisecond * 10
	// politeness pause between bus probes
	probePause = time.Millisecond * 5

	probeReadLimit = 256
)

func cmdIDAt(addr string) string {
	return "ID@" + addr + ":\r"
}

func cmdSelectAddress(addr string) string {
	return "ea:" + addr + "\r"
}

func cmdQueryNode(id int) string {
	return fmt.Sprintf("NN:%02d\r", id)
}

// AddressEntry maps one EXP bus address to the board model wired there.
type AddressEntry struct {
	Address   string
	BoardType string
}

// ExpAddressTable is the fixed EXP address layout, from FAST documentation.
var ExpAddressTable = [25]AddressEntry{
	{"48", "FP-CPU-2000"}, // Neuron built-in EXP
	{"D0", "FP-EXP-0051"},
	{"D1", "FP-EXP-0051"},
	{"D2", "FP-EXP-0051"},
	{"D3", "FP-EXP-0051"},
	{"90", "FP-EXP-0061"},
	{"91", "FP-EXP-0061"},
	{"92", "FP-EXP-0061"},
	{"93", "FP-EXP-0061"},
	{"B4", "FP-EXP-0071"},
	{"B5", "FP-EXP-0071"},
	{"B6", "FP-EXP-0071"},
	{"B7", "FP-EXP-0071"},
	{"84", "FP-EXP-0081"},
	{"85", "FP-EXP-0081"},
	{"86", "FP-EXP-0081"},
	{"87", "FP-EXP-0081"},
	{"88", "FP-EXP-0091"},
	{"89", "FP-EXP-0091"},
	{"8A", "FP-EXP-0091"},
	{"8B", "FP-EXP-0091"},
	{"30", "FP-EXP-1313"},
	{"31", "FP-EXP-1313"},
	{"32", "FP-EXP-1313"},
	{"33", "FP-EXP-1313"},
}

// BoardTypeForAddress resolves an EXP bus address (case-insensitive hex
// string) to its board type.
func BoardTypeForAddress(addr string) (string, bool) {
	for _, ent := range ExpAddressTable {
		if strings.EqualFold(ent.Address, addr) {
			return ent.BoardType, true
		}
	}
	return "", false
}
