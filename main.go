package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/rkjdid/util"

	"github.com/fastpinball/fastutil/fastboard"
	"github.com/fastpinball/fastutil/fetch"
	"github.com/fastpinball/fastutil/shell"
	"github.com/fastpinball/fastutil/web"
)

var rootConfig *web.Config

var (
	devNet   = flag.String("dev-net", "", "path to the NET serial port, skips discovery")
	devExp   = flag.String("dev-exp", "", "path to the EXP serial port, skips discovery")
	rootPath = flag.String("root", "", "path to fastutil's main directory (defaults to executable path)")
	cfgPath  = flag.String("config", "", "path to config (defaults to <root>/config.toml)")
	fwDir    = flag.String("firmware", "", "path to firmware catalog (defaults to ~/.fast/firmware)")
	serve    = flag.Bool("serve", false, "run the http monitor server instead of the shell")
	verbose  = flag.Bool("v", false, "higher verbosity")
	version  = flag.Bool("version", false, "print version & exit")
)

func init() {
	flag.Parse()

	// print version & exit
	if *version {
		fmt.Printf("fastutil %s\n", Version)
		os.Exit(0)
	}

	if *rootPath == "" {
		exe, err := os.Executable()
		if err != nil {
			log.Fatalf("couldn't get path to executable: %s", err)
		}
		*rootPath = filepath.Dir(exe)
	}
	err := os.MkdirAll(*rootPath, 0755)
	if err != nil {
		log.Fatalf("couldn't mkdir \"%s\": %s", *rootPath, err)
	}

	if *cfgPath == "" {
		*cfgPath = filepath.Join(*rootPath, "config.toml")
	}

	err = util.ReadTomlFile(&rootConfig, *cfgPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("error reading config \"%s\": %s", *cfgPath, err)
		}
		rootConfig = &web.DefaultConfig
		err = util.WriteTomlFile(rootConfig, *cfgPath)
		if err != nil {
			log.Fatalf("error creating config \"%s\": %s", *cfgPath, err)
		}
		log.Printf("created new config file \"%s\"", *cfgPath)
	}

	if *verbose {
		rootConfig.Web.Verbose = true
	}
	if *devNet != "" {
		rootConfig.Device.NetPort = *devNet
	}
	if *devExp != "" {
		rootConfig.Device.ExpPort = *devExp
	}
	if *fwDir != "" {
		rootConfig.Firmware.Dir = *fwDir
	}
}

// connect claims the serial ports, pinned ones from config first,
// discovery otherwise.
func connect(catalog *fastboard.Catalog) (*fastboard.Monitor, error) {
	dev := rootConfig.Device
	if dev.NetPort == "" && dev.ExpPort == "" {
		return fastboard.Connect(&rootConfig.Serial, catalog)
	}

	var exp *fastboard.ExpChannel
	var net *fastboard.NetChannel
	if dev.ExpPort != "" {
		conn, err := fastboard.OpenEndpoint(dev.ExpPort, &rootConfig.Serial)
		if err != nil {
			return nil, fmt.Errorf("error opening EXP port \"%s\": %w", dev.ExpPort, err)
		}
		exp = fastboard.NewExpChannel(conn, catalog)
	}
	if dev.NetPort != "" {
		conn, err := fastboard.OpenEndpoint(dev.NetPort, &rootConfig.Serial)
		if err != nil {
			if exp != nil {
				exp.Close()
			}
			return nil, fmt.Errorf("error opening NET port \"%s\": %w", dev.NetPort, err)
		}
		net = fastboard.NewNetChannel(conn, catalog)
	}
	return fastboard.NewMonitor(exp, net), nil
}

func main() {
	fwRoot := rootConfig.Firmware.Dir
	if fwRoot == "" {
		var err error
		fwRoot, err = fetch.DefaultDir()
		if err != nil {
			log.Fatalf("couldn't resolve firmware directory: %s", err)
		}
	}
	doFetch := func() (int, error) {
		return fetch.Firmware(fwRoot, rootConfig.Firmware.ArchiveURL)
	}
	catalog := fastboard.NewCatalog(fwRoot, func() error {
		_, err := doFetch()
		return err
	})

	if !*serve {
		shell.New(catalog, func() (*fastboard.Monitor, error) {
			return connect(catalog)
		}, doFetch).Run(flag.Args()...)
		return
	}

	mon, err := connect(catalog)
	if err != nil {
		log.Fatal("error connecting to FAST hardware: ", err)
	}
	if mon.Exp != nil {
		log.Printf("claimed EXP port \"%s\"", mon.Exp.Path())
	}
	if mon.Net != nil {
		log.Printf("claimed NET port \"%s\"", mon.Net.Path())
	}

	log.Printf("starting conn watcher (poll rate: %s)", rootConfig.Watcher.ConnPollRate)
	watcher := fastboard.NewWatcher(mon, &rootConfig.Watcher)
	watcher.WatchConn()

	log.Printf("starting webserver on http://%s ...", rootConfig.Web.ListenAddr)
	go web.StartServer(Version, mon, catalog, rootConfig, *cfgPath)

	// small delay to allow for panic in StartServer
	<-time.After(time.Millisecond * 500)
	log.Println("Press <Ctrl-C> to quit")

	trap := make(chan os.Signal, 1)
	signal.Notify(trap, os.Kill, os.Interrupt)
	<-trap
	fmt.Println()
	log.Println("quit received...")

	cleanExit := make(chan struct{})
	go func() {
		watcher.Stop()
		mon.Close()
		close(cleanExit)
	}()
	select {
	case <-time.After(time.Second * 10):
		log.Panicln("no clean exit after 10sec, please report panic log to https://github.com/fastpinball/fastutil/issues")
	case <-cleanExit:
	}
}
