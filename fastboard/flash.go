package fastboard

import (
	"bufio"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Clock abstracts wall time so deadline-bounded polls can be exercised
// in tests without real waiting.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type sysClock struct{}

func (sysClock) Now() time.Time        { return time.Now() }
func (sysClock) Sleep(d time.Duration) { time.Sleep(d) }

// FlashOutcome classifies how the post-flash identity check went.
// Anything but Verified means the flash was attempted but couldn't be
// confirmed, it is reported rather than returned as an error.
type FlashOutcome int

const (
	Verified FlashOutcome = iota
	VersionMismatch
	BoardMismatch
	Unparseable
)

func (o FlashOutcome) String() string {
	switch o {
	case Verified:
		return "Verified"
	case VersionMismatch:
		return "VersionMismatch"
	case BoardMismatch:
		return "BoardMismatch"
	case Unparseable:
		return "Unparseable"
	}
	return "Unknown"
}

func (o FlashOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// ProgressFunc receives cumulative bytes written while an image streams.
type ProgressFunc func(path string, total, sent int64)

// FlashResult is what a completed (error-free) flash attempt reports.
type FlashResult struct {
	Outcome   FlashOutcome
	Path      string
	BytesSent int64
	// AckSeen is false when the bootloader completion token never
	// showed up before the deadline; verification ran regardless.
	AckSeen bool
	// board/version/line as parsed from the identity reply, empty when
	// no identity line matched
	Board   string
	Version string
	Line    string
}

// flashSpec carries the per-bus parameters of the shared flash
// procedure; the two buses differ only in these literals and pacing.
type flashSpec struct {
	selectCmd       string // empty when the bus has no addressing
	idCmd           string
	idPrefix        string
	ackToken        string
	pacing          time.Duration
	path            string
	expectedBoard   string
	expectedVersion string
	// NET boards report the major version zero-padded
	trimMajorZeros bool
}

// flash drives the shared select → stream → await-ack → verify sequence.
// Handshake deadlines are soft: on expiry the next phase runs anyway,
// only I/O errors abort.
func flash(conn Conn, clock Clock, spec flashSpec, progress ProgressFunc) (FlashResult, error) {
	res := FlashResult{Outcome: Unparseable, Path: spec.path}

	if spec.selectCmd != "" {
		if err := conn.Write([]byte(spec.selectCmd)); err != nil {
			return res, err
		}
		clock.Sleep(replyDelay)
	}
	drain(conn) // discard select echo / stale bytes

	if err := stream(conn, clock, spec, &res, progress); err != nil {
		return res, err
	}

	acc := pollAccumulate(conn, clock, ackTimeout, func(acc string) bool {
		return strings.Contains(acc, spec.ackToken)
	})
	res.AckSeen = strings.Contains(acc, spec.ackToken)
	if res.AckSeen {
		log.Printf("bootloader reported completion: %s", spec.ackToken)
	} else {
		// the board may have rebooted without echoing the token
		log.Printf("timed out waiting for bootloader completion (%s), proceeding to identity check",
			spec.ackToken)
	}

	if err := conn.Write([]byte(spec.idCmd)); err != nil {
		return res, err
	}
	idResp := pollAccumulate(conn, clock, verifyTimeout, func(acc string) bool {
		return strings.ContainsAny(acc, "\r\n")
	})

	verifyIdentity(&res, idResp, spec)
	logVerdict(res, spec)
	return res, nil
}

// stream writes the image as CR-terminated records, pacing each one.
// The on-disk line endings are significant and reach the board
// byte-for-byte.
func stream(conn Conn, clock Clock, spec flashSpec, res *FlashResult, progress ProgressFunc) error {
	var total int64
	if fi, err := os.Stat(spec.path); err == nil {
		total = fi.Size()
	}
	f, err := os.Open(spec.path)
	if err != nil {
		return &StreamError{Path: spec.path, Err: err}
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, err := r.ReadBytes('\r')
		if len(rec) > 0 {
			if werr := conn.Write(rec); werr != nil {
				return &StreamError{Path: spec.path, BytesSent: res.BytesSent, Err: werr}
			}
			res.BytesSent += int64(len(rec))
			if progress != nil {
				progress(spec.path, total, res.BytesSent)
			}
			clock.Sleep(spec.pacing)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &StreamError{Path: spec.path, BytesSent: res.BytesSent, Err: err}
		}
	}
}

// pollAccumulate reads conn in short-timeout chunks until done reports
// the accumulated text is sufficient or the deadline passes. At least
// one read happens even with an expired deadline.
func pollAccumulate(conn Conn, clock Clock, timeout time.Duration, done func(string) bool) string {
	var acc strings.Builder
	deadline := clock.Now().Add(timeout)
	for {
		if chunk, err := conn.Read(); err == nil && len(chunk) > 0 {
			acc.Write(chunk)
			if done(acc.String()) {
				break
			}
		}
		if !clock.Now().Before(deadline) {
			break
		}
		clock.Sleep(pollInterval)
	}
	return acc.String()
}

// verifyIdentity scans the identity reply for the first line starting
// with the bus prefix and compares board and version tokens against
// what was flashed.
func verifyIdentity(res *FlashResult, idResp string, spec flashSpec) {
	for _, line := range strings.FieldsFunc(idResp, isLineBreak) {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, spec.idPrefix) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		ver := trimVersionTail(fields[2])
		if spec.trimMajorZeros {
			ver = trimMajorZeros(ver)
		}
		res.Line = line
		res.Board = fields[1]
		res.Version = ver
		if res.Board == spec.expectedBoard && ver == spec.expectedVersion {
			res.Outcome = Verified
			return
		}
	}
	switch {
	case res.Board == "":
		res.Outcome = Unparseable
	case res.Board != spec.expectedBoard:
		res.Outcome = BoardMismatch
	default:
		res.Outcome = VersionMismatch
	}
}

func logVerdict(res FlashResult, spec flashSpec) {
	switch res.Outcome {
	case Verified:
		log.Printf("firmware update verified: board %s reports version %s",
			spec.expectedBoard, spec.expectedVersion)
	case BoardMismatch:
		log.Printf("warning: identity board mismatch, expected %q got %q (line: %q)",
			spec.expectedBoard, res.Board, res.Line)
		if res.Version != spec.expectedVersion {
			log.Printf("warning: firmware version mismatch, expected %q got %q (line: %q)",
				spec.expectedVersion, res.Version, res.Line)
		}
	case VersionMismatch:
		log.Printf("warning: firmware version mismatch, expected %q got %q (line: %q)",
			spec.expectedVersion, res.Version, res.Line)
	case Unparseable:
		log.Printf("warning: no %q line found in identity reply, cannot verify version %s for board %s",
			spec.idPrefix, spec.expectedVersion, spec.expectedBoard)
	}
}

func isLineBreak(r rune) bool {
	return r == '\r' || r == '\n'
}
