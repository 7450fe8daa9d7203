package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/fastpinball/fastutil/fastboard"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rkjdid/util"

	_ "net/http/pprof"
)

// Server exposes the monitor over HTTP for scripts and dashboards:
// enumeration and catalog as JSON, flash over POST, live flash status
// over a websocket.
type Server struct {
	Config  *Config
	Monitor *fastboard.Monitor
	Catalog *fastboard.Catalog

	cfgPath    string
	router     *mux.Router
	wsUpgrader *websocket.Upgrader
}

type flashRequest struct {
	Address string
	Version string
}

// StartServer starts a new http.Server using provided version, Monitor & Config.
// It either doesn't return or panics (http.Listen)
func StartServer(version string, mon *fastboard.Monitor, catalog *fastboard.Catalog, cfg *Config, cfgPath string) {
	if cfg == nil {
		cfg = &DefaultConfig
	}
	cfg.Web.version = version
	srv := &Server{
		Config:  cfg,
		Monitor: mon,
		Catalog: catalog,
		cfgPath: cfgPath,
	}
	srv.wsUpgrader = &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	verbose := srv.Config.Web.Verbose
	srv.router = mux.NewRouter()

	// pprof handlers
	srv.router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	// shh
	srv.router.Handle("/favicon.ico", http.HandlerFunc(NilHandler))

	// register endpoints
	srv.router.Handle("/boards/exp",
		Logger(http.HandlerFunc(srv.ExpBoards), "boards-exp", verbose)).
		Methods("GET", "HEAD")
	srv.router.Handle("/nodes",
		Logger(http.HandlerFunc(srv.NetNodes), "nodes", verbose)).
		Methods("GET", "HEAD")
	srv.router.Handle("/catalog",
		Logger(http.HandlerFunc(srv.CatalogHandler), "catalog", verbose)).
		Methods("GET", "HEAD")
	srv.router.Handle("/config",
		Logger(http.HandlerFunc(srv.ConfigHandler), "config", verbose)).
		Methods("GET", "POST", "HEAD")
	srv.router.Handle("/flash/exp",
		Logger(http.HandlerFunc(srv.FlashExp), "flash-exp", verbose)).
		Methods("POST")
	srv.router.Handle("/flash/net",
		Logger(http.HandlerFunc(srv.FlashNet), "flash-net", verbose)).
		Methods("POST")
	srv.router.Handle("/status",
		Logger(http.HandlerFunc(srv.Status), "status", verbose)).
		Methods("GET", "HEAD")
	srv.router.Handle("/version",
		Logger(http.HandlerFunc(srv.Version), "version", verbose)).
		Methods("GET", "HEAD")
	srv.router.Handle("/websocket",
		Logger(http.HandlerFunc(srv.Websocket), "ws-status", verbose)).
		Methods("GET", "HEAD")

	httpServer := &http.Server{
		Handler:      srv.router,
		Addr:         srv.Config.Web.ListenAddr,
		WriteTimeout: 4 * time.Second,
		ReadTimeout:  4 * time.Second,
	}
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatal("http.ListenAndServer:", err)
	}
}

// Websocket subscribes the client to periodic flash-status snapshots.
func (s *Server) Websocket(w http.ResponseWriter, r *http.Request) {
	var interval = time.Duration(s.Config.Web.WebsocketInterval)
	if v, ok := r.URL.Query()["poll"]; ok {
		if d, err := time.ParseDuration(v[0]); err == nil {
			interval = d
		}
	}
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("error subscribing to websocket:", err)
		http.Error(w, "error subscribing to websocket", 500)
		return
	}

	if s.Config.Web.Verbose {
		log.Printf("websocket - subscription from %s (pollrate: %s)", conn.RemoteAddr(), interval)
	}

	go func(conn *websocket.Conn, s *Server) {
		var err error
		for {
			err = conn.WriteJSON(s.Monitor.Status())
			if err != nil {
				if s.Config.Web.Verbose {
					log.Printf("websocket - lost connection to %s", conn.RemoteAddr())
				}
				conn.Close()
				return
			}
			<-time.After(interval)
		}
	}(conn, s)
}

// ExpBoards enumerates the EXP bus and encodes the result as json.
func (s *Server) ExpBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.Monitor.ExpBoards()
	if err != nil {
		busError(w, err)
		return
	}
	if boards == nil {
		boards = []fastboard.BoardInfo{}
	}
	_ = json.NewEncoder(w).Encode(boards)
}

// NetNodes enumerates the NET bus and encodes the result as json.
func (s *Server) NetNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.Monitor.NetNodes()
	if err != nil {
		busError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(nodes)
}

// CatalogHandler encodes the firmware catalog as key -> sorted versions.
func (s *Server) CatalogHandler(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]string)
	for key := range s.Catalog.Index() {
		out[key] = s.Catalog.Versions(key)
	}
	_ = json.NewEncoder(w).Encode(out)
}

// ConfigHandler POST: persists a (partial) config to disk; live serial
//
//	changes need a restart
//
// GET: current config
func (s *Server) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		// copy current config, this allows for setting only a subset of the whole config
		cfg := *s.Config
		err := json.NewDecoder(r.Body).Decode(&cfg)
		if err != nil {
			log.Println("error decoding json:", err)
			http.Error(w, "couldn't decode provided json", http.StatusUnprocessableEntity)
			return
		}
		*s.Config = cfg
		err = util.WriteTomlFile(s.Config, s.cfgPath)
		if err != nil {
			log.Println("error writing config:", err)
			http.Error(w, "error writing config", http.StatusInternalServerError)
			return
		}
	case http.MethodGet:
	default:
		http.Error(w, fmt.Sprintf("unexpected http-method (%s)", r.Method), http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(200)
	_ = json.NewEncoder(w).Encode(s.Config)
}

// FlashExp runs an EXP board update. One flash at a time, a busy
// monitor answers 409.
func (s *Server) FlashExp(w http.ResponseWriter, r *http.Request) {
	var req flashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "couldn't decode provided json", http.StatusUnprocessableEntity)
		return
	}
	res, err := s.Monitor.UpdateExp(req.Address, req.Version, nil)
	s.flashReply(w, res, err)
}

// FlashNet runs the NET controller update.
func (s *Server) FlashNet(w http.ResponseWriter, r *http.Request) {
	var req flashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "couldn't decode provided json", http.StatusUnprocessableEntity)
		return
	}
	res, err := s.Monitor.UpdateNet(req.Version, nil)
	s.flashReply(w, res, err)
}

// Status encodes the current flash status as json.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(s.Monitor.Status())
}

func (s *Server) Version(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]string{"version": s.Config.Web.version})
}

func (s *Server) flashReply(w http.ResponseWriter, res fastboard.FlashResult, err error) {
	if err != nil {
		var notFound *fastboard.FirmwareNotFoundError
		var unknownAddr *fastboard.UnknownAddressError
		switch {
		case errors.Is(err, fastboard.ErrFlashBusy):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.As(err, &notFound), errors.As(err, &unknownAddr):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, fastboard.ErrNoExpChannel), errors.Is(err, fastboard.ErrNoNetChannel):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}

func busError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fastboard.ErrFlashBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, fastboard.ErrNoExpChannel), errors.Is(err, fastboard.ErrNoNetChannel):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
