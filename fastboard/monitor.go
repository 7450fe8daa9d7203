package fastboard

import (
	"log"
	"sync"

	"go.bug.st/serial.v1"
)

// Monitor is the session orchestrator: it claims the first responsive
// port of each bus kind and owns one channel per claimed port for its
// whole lifetime. At most one flash runs at a time across both buses.
type Monitor struct {
	Exp *ExpChannel
	Net *NetChannel

	// busMu serializes all traffic on the claimed ports: the buses are
	// strictly one-operation-at-a-time.
	busMu sync.Mutex

	mu       sync.Mutex
	flashing bool
	status   FlashStatus
}

// NewMonitor wires a monitor around already-opened channels; either may
// be nil when its bus isn't attached.
func NewMonitor(exp *ExpChannel, net *NetChannel) *Monitor {
	return &Monitor{Exp: exp, Net: net}
}

// Connect discovers FAST ports and claims the first of each kind.
// It fails with ErrNoPortFound only when neither bus answered.
func Connect(mode *serial.Mode, catalog *Catalog) (*Monitor, error) {
	found, err := Discover(mode)
	if err != nil {
		return nil, err
	}

	m := &Monitor{}
	for name, proto := range found {
		switch proto {
		case EXP:
			if m.Exp != nil {
				continue
			}
			conn, err := OpenEndpoint(name, mode)
			if err != nil {
				log.Printf("reopening %q: %s", name, err)
				continue
			}
			m.Exp = NewExpChannel(conn, catalog)
		case NET:
			if m.Net != nil {
				continue
			}
			conn, err := OpenEndpoint(name, mode)
			if err != nil {
				log.Printf("reopening %q: %s", name, err)
				continue
			}
			m.Net = NewNetChannel(conn, catalog)
		}
	}
	if m.Exp == nil && m.Net == nil {
		return nil, ErrNoPortFound
	}
	return m, nil
}

func (m *Monitor) Close() {
	if m.Exp != nil {
		m.Exp.Close()
	}
	if m.Net != nil {
		m.Net.Close()
	}
}

// ExpBoards enumerates the EXP bus.
func (m *Monitor) ExpBoards() ([]BoardInfo, error) {
	if m.Exp == nil {
		return nil, ErrNoExpChannel
	}
	if m.Flashing() {
		return nil, ErrFlashBusy
	}
	m.busMu.Lock()
	defer m.busMu.Unlock()
	return m.Exp.Boards(), nil
}

// NetNodes enumerates the NET bus.
func (m *Monitor) NetNodes() (map[int]NodeInfo, error) {
	if m.Net == nil {
		return nil, ErrNoNetChannel
	}
	if m.Flashing() {
		return nil, ErrFlashBusy
	}
	m.busMu.Lock()
	defer m.busMu.Unlock()
	return m.Net.Nodes(), nil
}

// UpdateExp flashes the EXP board at address to version. progress may
// be nil; the monitor's status snapshot tracks the stream either way.
func (m *Monitor) UpdateExp(address, version string, progress ProgressFunc) (FlashResult, error) {
	if m.Exp == nil {
		return FlashResult{}, ErrNoExpChannel
	}
	if err := m.beginFlash("EXP@" + address); err != nil {
		return FlashResult{}, err
	}
	m.busMu.Lock()
	res, err := m.Exp.UpdateFirmware(address, version, m.trackProgress(progress))
	m.busMu.Unlock()
	m.endFlash(res, err)
	return res, err
}

// UpdateNet flashes the NET controller to version.
func (m *Monitor) UpdateNet(version string, progress ProgressFunc) (FlashResult, error) {
	if m.Net == nil {
		return FlashResult{}, ErrNoNetChannel
	}
	if err := m.beginFlash("NET"); err != nil {
		return FlashResult{}, err
	}
	m.busMu.Lock()
	res, err := m.Net.UpdateFirmware(version, m.trackProgress(progress))
	m.busMu.Unlock()
	m.endFlash(res, err)
	return res, err
}

// Status snapshots the current flash activity.
func (m *Monitor) Status() FlashStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Flashing reports whether a flash is currently running.
func (m *Monitor) Flashing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flashing
}

func (m *Monitor) beginFlash(target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flashing {
		return ErrFlashBusy
	}
	m.flashing = true
	m.status = FlashStatus{Active: true, Target: target}
	return nil
}

func (m *Monitor) endFlash(res FlashResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flashing = false
	m.status.Active = false
	m.status.SentBytes = res.BytesSent
	if err != nil {
		m.status.LastOutcome = err.Error()
	} else {
		m.status.LastOutcome = res.Outcome.String()
	}
}

// PingExp confirms the claimed EXP port still answers the identity
// command; false when no EXP port is claimed.
func (m *Monitor) PingExp() bool {
	if m.Exp == nil {
		return false
	}
	m.busMu.Lock()
	defer m.busMu.Unlock()
	return m.Exp.Ping()
}

// PingNet is PingExp for the NET bus.
func (m *Monitor) PingNet() bool {
	if m.Net == nil {
		return false
	}
	m.busMu.Lock()
	defer m.busMu.Unlock()
	return m.Net.Ping()
}

func (m *Monitor) trackProgress(next ProgressFunc) ProgressFunc {
	return func(path string, total, sent int64) {
		m.mu.Lock()
		m.status.Path = path
		m.status.TotalBytes = total
		m.status.SentBytes = sent
		m.mu.Unlock()
		if next != nil {
			next(path, total, sent)
		}
	}
}
