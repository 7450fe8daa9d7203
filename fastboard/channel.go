package fastboard

import (
	"log"
	"strings"
)

// channel is the shared half of both protocol channels: exclusive
// ownership of one Conn, a catalog reference and a clock. All bus
// traffic is strictly sequential, waiting is bounded polling.
type channel struct {
	conn    Conn
	clock   Clock
	catalog *Catalog
}

// Path returns the owned port's device name.
func (c *channel) Path() string {
	return c.conn.Path()
}

func (c *channel) Close() error {
	return c.conn.Close()
}

// Ping confirms the port still answers the identity command.
func (c *channel) Ping() bool {
	c.send(CmdID)
	c.clock.Sleep(replyDelay)
	_, ok := ParseProtocol(c.receive())
	return ok
}

// send writes a command best-effort; the bus gives no write acks, so
// errors are only logged.
func (c *channel) send(cmd string) {
	if err := c.conn.Write([]byte(cmd)); err != nil {
		log.Printf("write %q to %q: %s", strings.TrimRight(cmd, "\r"), c.conn.Path(), err)
	}
}

// receive grabs whatever single chunk is pending, trimmed; empty when
// the port is quiet.
func (c *channel) receive() string {
	chunk, err := c.conn.Read()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(chunk))
}

// drain discards pending bytes until the port goes quiet.
func drain(conn Conn) {
	for {
		chunk, err := conn.Read()
		if err != nil || len(chunk) == 0 {
			return
		}
	}
}
