package fastboard

import (
	"log"
	"strings"
)

// ControllerNodeID is the pseudo-node id under which the controller's
// own ID: reply is reported next to the NN:-enumerated nodes.
const ControllerNodeID = "NC"

// NetChannel drives the controller bus: one CPU board plus its
// node-enumerated children. Flashing targets the controller only, no
// address concept exists.
type NetChannel struct {
	channel
}

func NewNetChannel(conn Conn, catalog *Catalog) *NetChannel {
	return &NetChannel{channel{conn: conn, clock: sysClock{}, catalog: catalog}}
}

// Nodes enumerates nodes with sequential NN: queries starting at 0,
// stopping on the first silent or "!Node Not Found!" answer. The
// controller itself is queried with ID: and appended after the last
// node index.
func (c *NetChannel) Nodes() map[int]NodeInfo {
	nodes := make(map[int]NodeInfo)
	drain(c.conn)

	c.send(CmdID)
	c.clock.Sleep(replyDelay)
	_, controllerBoard, controllerVersion, haveController := ParseID(c.receive())

	index := 0
	for {
		c.send(cmdQueryNode(index))
		c.clock.Sleep(replyDelay)
		resp := c.receive()
		if resp == "" || strings.Contains(resp, NodeNotFound) {
			break
		}
		if info, ok := ParseNodeRecord(resp); ok {
			nodes[index] = info
		}
		index++
		c.clock.Sleep(probePause)
	}

	if haveController {
		nodes[index] = NodeInfo{
			ID:       ControllerNodeID,
			Name:     controllerBoard,
			Firmware: controllerVersion,
		}
	}
	return nodes
}

// UpdateFirmware flashes the controller to version, verifies via ID:
// and then broadcasts bn:aa55 so subordinate I/O boards pick up the
// update. The broadcast is fire-and-forget.
func (c *NetChannel) UpdateFirmware(version string, progress ProgressFunc) (FlashResult, error) {
	normalized := NormalizeVersion(version)
	key := CatalogKey(NetControllerBoard, NET)
	path, ok := c.catalog.Lookup(key, normalized)
	if !ok {
		return FlashResult{}, &FirmwareNotFoundError{
			Key:       key,
			Version:   normalized,
			Available: c.catalog.Versions(key),
		}
	}
	res, err := flash(c.conn, c.clock, flashSpec{
		idCmd:           CmdID,
		idPrefix:        "ID:" + NET.String(),
		ackToken:        AckTokenNet,
		pacing:          PacingNet,
		path:            path,
		expectedBoard:   NetControllerBoard,
		expectedVersion: normalized,
		trimMajorZeros:  true,
	}, progress)
	if err != nil {
		return res, err
	}
	log.Println("propagating update to subordinate I/O boards (not all may have one)")
	c.send(CmdBroadcastNodes)
	return res, nil
}
