package web

import (
	"time"

	"github.com/fastpinball/fastutil/fastboard"
	"github.com/fastpinball/fastutil/fetch"
	"github.com/rkjdid/util"
	"go.bug.st/serial.v1"
)

var DefaultConfig = Config{
	Firmware: DefaultFirmwareConfig,
	Web:      DefaultServerConfig,
	Watcher:  fastboard.DefaultWatcherConfig,
	Serial:   *fastboard.DefaultSerialConfig,
}

type Config struct {
	Device   DeviceConfig
	Firmware FirmwareConfig
	Web      ServerConfig
	Watcher  fastboard.WatcherConfig
	Serial   serial.Mode
}

// DeviceConfig pins ports explicitly, bypassing discovery. Empty
// values mean probe-and-classify.
type DeviceConfig struct {
	NetPort string
	ExpPort string
}

// FirmwareConfig locates the on-disk firmware catalog and where fresh
// images come from. An empty Dir resolves to ~/.fast/firmware.
type FirmwareConfig struct {
	Dir        string
	ArchiveURL string
}

var DefaultFirmwareConfig = FirmwareConfig{
	ArchiveURL: fetch.DefaultArchiveURL,
}

type ServerConfig struct {
	ListenAddr        string
	Verbose           bool
	WebsocketInterval util.Duration

	version string
}

var DefaultServerConfig = ServerConfig{
	ListenAddr:        "localhost:3663",
	WebsocketInterval: util.Duration(time.Second),
}
