package fastboard

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"go.bug.st/serial.v1"
)

var ErrNoPortFound = errors.New("didn't find any responsive FAST serial port")
var ErrClosedPort = errors.New("serial port is closed")

// DefaultSerialConfig is the fixed line configuration both FAST buses
// run at: 921600 8N1, no flow control. DTR is asserted on open.
var DefaultSerialConfig = &serial.Mode{
	BaudRate: 921600,
	Parity:   serial.NoParity,
	DataBits: 8,
	StopBits: serial.OneStopBit,
}

var DefaultTimeout = time.Millisecond * 250

// Conn is the duplex byte channel a protocol channel drives. Read
// returns whatever chunk arrived within the connection's read timeout.
// A Conn is exclusively owned by at most one channel at a time.
type Conn interface {
	Read() ([]byte, error)
	Write(b []byte) error
	Path() string
	Close() error
}

// SerialConnection adapts a serial.Port into a Conn: the underlying
// port has no read deadline, so a pair of routines shuttle bytes over
// channels and Read/Write bound their waits with selects.
type SerialConnection struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	serial.Port
	path   string
	config *serial.Mode

	rdChan    chan []byte
	wrChan    chan []byte
	errChan   chan error
	closeChan chan struct{}
	wg        sync.WaitGroup
}

func NewSerial(port serial.Port, config *serial.Mode, name string) *SerialConnection {
	return &SerialConnection{
		Port:      port,
		path:      name,
		config:    config,
		rdChan:    make(chan []byte),
		wrChan:    make(chan []byte),
		errChan:   make(chan error),
		closeChan: make(chan struct{}),

		ReadTimeout:  DefaultTimeout,
		WriteTimeout: DefaultTimeout,
	}
}

// Start begins the two routines responsible
// for reading and writing on serial port.
func (sc *SerialConnection) Start() {
	sc.wg.Add(2)
	go func() {
		sc.readRoutine()
		sc.wg.Done()
	}()
	go func() {
		sc.writeRoutine()
		sc.wg.Done()
	}()
}

// Read takes one of sc.rdChan or sc.errChan, waiting up to sc.ReadTimeout,
// it also checks if connection is closed and returns error accordingly.
func (sc *SerialConnection) Read() (b []byte, err error) {
	select {
	case b = <-sc.rdChan:
	case err = <-sc.errChan:
	case <-sc.closeChan:
		err = ErrClosedPort
	case <-time.After(sc.ReadTimeout):
		err = fmt.Errorf("read timeout (%s)", sc.ReadTimeout)
	}
	return b, err
}

// Write pushes b to sc.wrChan, or returns an error
// after sc.WriteTimeout, or if connection is closed.
func (sc *SerialConnection) Write(b []byte) (err error) {
	select {
	case sc.wrChan <- b:
	case <-sc.closeChan:
		err = ErrClosedPort
	case <-time.After(sc.WriteTimeout):
		err = fmt.Errorf("write timeout (%s)", sc.WriteTimeout)
	}
	return err
}

// Close notifies read/write routines to stop, then waits
// for them to return, it then actually closes serial port.
func (sc *SerialConnection) Close() error {
	close(sc.closeChan)
	sc.wg.Wait()
	return sc.Port.Close()
}

// Path returns device name / path of serial port.
func (sc *SerialConnection) Path() string {
	return sc.path
}

func (sc *SerialConnection) readRoutine() {
	for {
		time.Sleep(time.Millisecond * 20)
		b := make([]byte, probeReadLimit)
		i, err := sc.Port.Read(b)
		if err != nil {
			select {
			case sc.errChan <- err:
			case <-sc.closeChan:
				return
			}
		} else {
			select {
			case sc.rdChan <- b[:i]:
			case <-sc.closeChan:
				return
			}
		}
	}
}

func (sc *SerialConnection) writeRoutine() {
	var b []byte
	for {
		select {
		case b = <-sc.wrChan:
		case <-sc.closeChan:
			return
		}
		_, err := sc.Port.Write(b)
		if err != nil {
			log.Println("in sc.writeRoutine:", err)
		}
	}
}

// OpenEndpoint opens name with the FAST line configuration (or mode when
// given), asserts DTR and starts the shuttling routines.
func OpenEndpoint(name string, mode *serial.Mode) (*SerialConnection, error) {
	if mode == nil {
		mode = DefaultSerialConfig
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetDTR(true); err != nil {
		port.Close()
		return nil, fmt.Errorf("asserting DTR on %q: %w", name, err)
	}
	conn := NewSerial(port, mode, name)
	// the buses answer within a few ms, keep reads snappy
	conn.ReadTimeout = time.Millisecond * 50
	conn.Start()
	return conn, nil
}

// Discover probes every serial port the platform reports with the
// identity command and classifies responsive ones by bus protocol.
// Ports that fail to open, stay silent or answer garbage are skipped:
// absence of hardware is expected, not an error. Results cover every
// match, picking one port per bus is the caller's policy.
func Discover(mode *serial.Mode) (map[string]Protocol, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	found := make(map[string]Protocol)
	for _, name := range names {
		conn, err := OpenEndpoint(name, mode)
		if err != nil {
			continue
		}
		proto, ok := Classify(conn, sysClock{})
		conn.Close()
		if ok {
			log.Printf("found %s bus on %q", proto, name)
			found[name] = proto
		}
	}
	return found, nil
}

// Classify sends the identity command on conn and pattern-matches the
// reply, reading up to probeReadLimit bytes or until the port goes
// quiet.
func Classify(conn Conn, clock Clock) (Protocol, bool) {
	if err := conn.Write([]byte(CmdID)); err != nil {
		return 0, false
	}
	clock.Sleep(probePause)
	var collected []byte
	for len(collected) < probeReadLimit {
		chunk, err := conn.Read()
		if err != nil || len(chunk) == 0 {
			break
		}
		collected = append(collected, chunk...)
	}
	if len(collected) == 0 {
		return 0, false
	}
	return ParseProtocol(string(collected))
}
