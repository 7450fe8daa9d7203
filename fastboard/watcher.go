package fastboard

import (
	"log"
	"sync"
	"time"

	"github.com/rkjdid/util"
)

// Watcher periodically confirms the monitor's claimed ports still
// answer the identity command and logs transitions. It only observes:
// ports stay exclusively owned by their channels, and pings are
// suppressed while a flash runs.
type Watcher struct {
	mon    *Monitor
	cfg    *WatcherConfig
	stopCh chan struct{}
	wg     sync.WaitGroup
}

type WatcherConfig struct {
	ConnPollRate util.Duration
}

var DefaultWatcherConfig = WatcherConfig{
	ConnPollRate: util.Duration(time.Second * 10),
}

func NewWatcher(mon *Monitor, cfg *WatcherConfig) *Watcher {
	if cfg == nil {
		cfg = &DefaultWatcherConfig
	}
	return &Watcher{
		mon: mon,
		cfg: cfg,
	}
}

func (w *Watcher) Stop() {
	if w.stopCh == nil {
		return
	}
	log.Println("stopping conn watcher")
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Watcher) WatchConn() {
	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		expUp, netUp := true, true
		for {
			select {
			case <-time.After(time.Duration(w.cfg.ConnPollRate)):
			case <-w.stopCh:
				w.stopCh = nil
				return
			}
			if w.mon.Flashing() {
				continue
			}
			if w.mon.Exp != nil {
				expUp = w.ping("EXP", w.mon.PingExp(), expUp)
			}
			if w.mon.Net != nil {
				netUp = w.ping("NET", w.mon.PingNet(), netUp)
			}
		}
	}()
}

func (w *Watcher) ping(bus string, up, wasUp bool) bool {
	if up != wasUp {
		if up {
			log.Printf("%s bus is answering again", bus)
		} else {
			log.Printf("%s bus stopped answering", bus)
		}
	}
	return up
}
