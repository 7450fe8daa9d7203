package fastboard

// ExpChannel drives the expansion bus: boards are addressed by a
// one-byte hex address from the fixed table, enumerated one by one, and
// flashed through the shared flash sequence with EXP pacing and tokens.
type ExpChannel struct {
	channel
}

func NewExpChannel(conn Conn, catalog *Catalog) *ExpChannel {
	return &ExpChannel{channel{conn: conn, clock: sysClock{}, catalog: catalog}}
}

// Boards probes all 25 fixed bus addresses and reports every board that
// answered. Silent addresses are skipped, an empty bus is a valid
// result. Available versions come from the catalog, looked up first by
// the name the board reported, then by the table's board type.
func (c *ExpChannel) Boards() []BoardInfo {
	drain(c.conn)
	var boards []BoardInfo
	for _, ent := range ExpAddressTable {
		c.send(cmdIDAt(ent.Address))
		c.clock.Sleep(replyDelay)
		resp := c.receive()
		if proto, board, version, ok := ParseID(resp); ok {
			name := board
			if name == "" {
				name = ent.BoardType
			}
			versions := c.catalog.Versions(name + "_" + proto)
			if versions == nil {
				versions = c.catalog.Versions(ent.BoardType + "_" + proto)
			}
			boards = append(boards, BoardInfo{
				Address:           ent.Address,
				Name:              name,
				Version:           version,
				AvailableVersions: versions,
			})
		}
		c.clock.Sleep(probePause)
	}
	return boards
}

// UpdateFirmware flashes the board at address to version and verifies
// the result by re-querying its identity. version may be given loosely
// ("0.9" matches the catalog's "0.09").
func (c *ExpChannel) UpdateFirmware(address, version string, progress ProgressFunc) (FlashResult, error) {
	boardType, ok := BoardTypeForAddress(address)
	if !ok {
		return FlashResult{}, &UnknownAddressError{Address: address}
	}
	normalized := NormalizeVersion(version)
	key := CatalogKey(boardType, EXP)
	path, ok := c.catalog.Lookup(key, normalized)
	if !ok {
		return FlashResult{}, &FirmwareNotFoundError{
			Key:       key,
			Version:   normalized,
			Available: c.catalog.Versions(key),
		}
	}
	return flash(c.conn, c.clock, flashSpec{
		selectCmd:       cmdSelectAddress(address),
		idCmd:           cmdIDAt(address),
		idPrefix:        "ID:" + EXP.String(),
		ackToken:        AckTokenExp,
		pacing:          PacingExp,
		path:            path,
		expectedBoard:   boardType,
		expectedVersion: normalized,
	}, progress)
}
