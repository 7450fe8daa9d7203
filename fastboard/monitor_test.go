package fastboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorMissingChannels(t *testing.T) {
	m := NewMonitor(nil, nil)

	_, err := m.ExpBoards()
	assert.ErrorIs(t, err, ErrNoExpChannel)

	_, err = m.NetNodes()
	assert.ErrorIs(t, err, ErrNoNetChannel)

	_, err = m.UpdateExp("88", "0.48", nil)
	assert.ErrorIs(t, err, ErrNoExpChannel)

	_, err = m.UpdateNet("2.28", nil)
	assert.ErrorIs(t, err, ErrNoNetChannel)

	assert.False(t, m.PingExp())
	assert.False(t, m.PingNet())
}

func TestMonitorStatusTracksFlash(t *testing.T) {
	ch, port := expTestChannel(t)
	scriptExpDevice(port, "0.48")
	m := NewMonitor(ch, nil)

	var active bool
	res, err := m.UpdateExp("88", "0.48", func(path string, total, sent int64) {
		active = m.Status().Active
	})
	require.NoError(t, err)
	assert.Equal(t, Verified, res.Outcome)
	assert.True(t, active, "status must report an active flash while streaming")

	st := m.Status()
	assert.False(t, st.Active)
	assert.Equal(t, "EXP@88", st.Target)
	assert.Equal(t, res.BytesSent, st.SentBytes)
	assert.Equal(t, "Verified", st.LastOutcome)
	assert.False(t, m.Flashing())
}

func TestMonitorReportsFlashErrors(t *testing.T) {
	ch, _ := expTestChannel(t)
	m := NewMonitor(ch, nil)

	_, err := m.UpdateExp("FF", "0.48", nil)
	var uerr *UnknownAddressError
	require.ErrorAs(t, err, &uerr)
	assert.Contains(t, m.Status().LastOutcome, "FF")
	assert.False(t, m.Flashing())
}

func TestMonitorEnumerationRefusedWhileFlashing(t *testing.T) {
	ch, port := expTestChannel(t)
	m := NewMonitor(ch, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	port.onWrite = func(cmd string) {
		if cmd == "REC1\r" {
			close(started)
			<-release
		}
		if cmd == "ID@88:\r" {
			port.push("ID:EXP FP-EXP-0091 0.48\r")
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.UpdateExp("88", "0.48", nil)
	}()

	<-started
	_, err := m.ExpBoards()
	assert.ErrorIs(t, err, ErrFlashBusy)
	_, err = m.UpdateExp("88", "0.48", nil)
	assert.ErrorIs(t, err, ErrFlashBusy)

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("flash didn't finish")
	}
}
