package fastboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	port := &fakePort{path: "/dev/ttyACM0"}
	port.onWrite = func(cmd string) {
		if cmd == CmdID {
			port.push("boot noise ID:NET FP-CPU-2000 2.28\r")
		}
	}
	clock := &fakeClock{now: time.Unix(1000, 0)}

	proto, ok := Classify(port, clock)
	require.True(t, ok)
	assert.Equal(t, NET, proto)
	assert.Equal(t, CmdID, port.writes[0])

	// probing is repeatable: same scripted device, same classification
	proto, ok = Classify(port, clock)
	require.True(t, ok)
	assert.Equal(t, NET, proto)
}

func TestClassifySilentPort(t *testing.T) {
	port := &fakePort{path: "/dev/ttyACM1"}
	_, ok := Classify(port, &fakeClock{})
	assert.False(t, ok)
}

func TestClassifyGarbagePort(t *testing.T) {
	port := &fakePort{path: "/dev/ttyACM2"}
	port.onWrite = func(cmd string) {
		if cmd == CmdID {
			port.push("\x01\x02 not a fast board\r")
		}
	}
	_, ok := Classify(port, &fakeClock{})
	assert.False(t, ok)
}

func TestExpBoards(t *testing.T) {
	dir := t.TempDir()
	writeFirmwareFile(t, dir, "FP-EXP-0091", "FP-EXP-0091_EXP_firmware_v_0_48.txt")
	writeFirmwareFile(t, dir, "FP-EXP-0091", "FP-EXP-0091_EXP_firmware_v_0_50.txt")

	port := &fakePort{path: "/dev/ttyUSB1"}
	port.onWrite = func(cmd string) {
		switch cmd {
		case "ID@88:\r":
			port.push("ID:EXP, FP-EXP-0091 0.48")
		case "ID@31:\r":
			port.push("ID:EXP FP-EXP-1313 0.12\r")
		}
	}
	ch := NewExpChannel(port, NewCatalog(dir, nil))
	ch.clock = &fakeClock{now: time.Unix(1000, 0)}

	boards := ch.Boards()
	require.Len(t, boards, 2)

	assert.Equal(t, "88", boards[0].Address)
	assert.Equal(t, "FP-EXP-0091", boards[0].Name)
	assert.Equal(t, "0.48", boards[0].Version)
	assert.Equal(t, []string{"0.48", "0.50"}, boards[0].AvailableVersions)

	assert.Equal(t, "31", boards[1].Address)
	assert.Equal(t, "FP-EXP-1313", boards[1].Name)
	assert.Nil(t, boards[1].AvailableVersions)

	// every table address was probed
	for _, ent := range ExpAddressTable {
		assert.True(t, port.wrote(cmdIDAt(ent.Address)), "no probe for %s", ent.Address)
	}
}

func TestExpBoardsCatalogFallbackKey(t *testing.T) {
	// board reports a name the catalog doesn't know, versions resolve
	// through the address table's board type
	dir := t.TempDir()
	writeFirmwareFile(t, dir, "FP-EXP-0091", "FP-EXP-0091_EXP_firmware_v_0_48.txt")

	port := &fakePort{path: "/dev/ttyUSB1"}
	port.onWrite = func(cmd string) {
		if cmd == "ID@88:\r" {
			port.push("ID:EXP FP-EXP-0091-PROTO 0.40\r")
		}
	}
	ch := NewExpChannel(port, NewCatalog(dir, nil))
	ch.clock = &fakeClock{now: time.Unix(1000, 0)}

	boards := ch.Boards()
	require.Len(t, boards, 1)
	assert.Equal(t, "FP-EXP-0091-PROTO", boards[0].Name)
	assert.Equal(t, []string{"0.48"}, boards[0].AvailableVersions)
}

func TestNetNodes(t *testing.T) {
	port := &fakePort{path: "/dev/ttyUSB0"}
	port.onWrite = func(cmd string) {
		switch cmd {
		case CmdID:
			port.push("ID:NET FP-CPU-2000 2.28\r")
		case "NN:00\r":
			port.push("NN:00,Cabinet,0.10\r")
		case "NN:01\r":
			port.push("NN:01,Playfield,2.10,5,6\r")
		case "NN:02\r":
			port.push(NodeNotFound)
		}
	}
	ch := NewNetChannel(port, NewCatalog(t.TempDir(), nil))
	ch.clock = &fakeClock{now: time.Unix(1000, 0)}

	nodes := ch.Nodes()
	require.Len(t, nodes, 3)

	assert.Equal(t, "00", nodes[0].ID)
	assert.Equal(t, "Cabinet", nodes[0].Name)
	assert.Equal(t, "0.10", nodes[0].Firmware)

	assert.Equal(t, []string{"5", "6"}, nodes[1].Extra)

	// the controller rides along as a pseudo-node after the last index
	assert.Equal(t, ControllerNodeID, nodes[2].ID)
	assert.Equal(t, "FP-CPU-2000", nodes[2].Name)
	assert.Equal(t, "2.28", nodes[2].Firmware)
}

func TestNetNodesStopsOnSilence(t *testing.T) {
	port := &fakePort{path: "/dev/ttyUSB0"}
	port.onWrite = func(cmd string) {
		switch cmd {
		case CmdID:
			port.push("ID:NET FP-CPU-2000 2.28\r")
		case "NN:00\r":
			port.push("NN:00,Cabinet,0.10\r")
		}
	}
	ch := NewNetChannel(port, NewCatalog(t.TempDir(), nil))
	ch.clock = &fakeClock{now: time.Unix(1000, 0)}

	nodes := ch.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, ControllerNodeID, nodes[1].ID)
	assert.False(t, port.wrote("NN:02\r"))
}

func TestChannelPing(t *testing.T) {
	port := &fakePort{path: "/dev/ttyUSB1"}
	port.onWrite = func(cmd string) {
		if cmd == CmdID {
			port.push("ID:EXP FP-EXP-0091 0.48\r")
		}
	}
	ch := NewExpChannel(port, NewCatalog(t.TempDir(), nil))
	ch.clock = &fakeClock{now: time.Unix(1000, 0)}

	assert.True(t, ch.Ping())

	port.onWrite = nil
	assert.False(t, ch.Ping())
}
