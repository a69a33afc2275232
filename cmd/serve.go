package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/eclipsesource/tabris-js-cli-sub000/internal/config"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/console"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/mdns"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/server"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/snapshot"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/storage"
	"github.com/eclipsesource/tabris-js-cli-sub000/internal/terminal"
)

// ServeConfig holds the configuration for the serve command.
type ServeConfig struct {
	Config      string
	Addr        string
	PublicHost  string
	HeartbeatMs int
	SessionDB   string
	NoJournal   bool
	MdnsEnabled bool
	QR          bool
	LogFile     string
	Verbose     bool
}

// serveInput is the console input. Tests replace it.
var serveInput io.Reader = os.Stdin

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := &ServeConfig{}

	fs.StringVar(&cfg.Config, "config", "", "Path to config file (default: ~/.tabris/config.toml)")
	fs.StringVar(&cfg.Addr, "addr", "", "Listen address for the debug server (default: "+config.DefaultAddr+")")
	fs.StringVar(&cfg.PublicHost, "public-host", "", "host:port printed in the connect URL (default: outbound IP and listen port)")
	fs.IntVar(&cfg.HeartbeatMs, "heartbeat-ms", 0, "Heartbeat interval in ms (default: 5000)")
	fs.StringVar(&cfg.SessionDB, "session-db", "", "Path to the session journal (default: ~/.tabris/sessions.db)")
	fs.BoolVar(&cfg.NoJournal, "no-journal", false, "Do not record sessions")
	fs.BoolVar(&cfg.MdnsEnabled, "mdns", false, "Advertise the server via mDNS/Bonjour (LAN-visible)")
	fs.BoolVar(&cfg.QR, "qr", false, "Print the connect URL as a QR code")
	fs.StringVar(&cfg.LogFile, "log-file", "", "Write diagnostics to this file")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Show diagnostics in the console")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tabris serve [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	explicitFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicitFlags[f.Name] = true
	})

	// CLI flags take precedence over file values.
	fileCfg, err := config.Load(cfg.Config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	mergeServeConfig(cfg, fileCfg, explicitFlags)

	term := terminal.New(serveInput, stdout)

	// Route diagnostics before anything logs.
	logFile, err := routeLog(cfg, term)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}
	defer log.SetOutput(os.Stderr)

	srv := server.NewServer(cfg.Addr)
	srv.SetTerminal(term)
	srv.SetHeartbeatInterval(time.Duration(cfg.HeartbeatMs) * time.Millisecond)

	var journal *storage.SQLiteStore
	if !cfg.NoJournal {
		journal, err = openJournal(cfg.SessionDB)
		if err != nil {
			fmt.Fprintf(stderr, "Warning: session journal disabled: %v\n", err)
		} else {
			defer journal.Close()
			srv.SetSessionJournal(journal)
		}
	}

	transfer := snapshot.NewTransfer(srv, term)
	srv.SetStorageHandler(transfer.HandleStorage)

	if err := <-srv.StartAsync(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer srv.Stop()

	publicHost := resolvePublicHost(cfg.PublicHost, srv.Addr())

	var advertiser *mdns.Advertiser
	if cfg.MdnsEnabled {
		advertiser = mdns.NewAdvertiser(mdns.Config{
			Port:     addrPort(srv.Addr()),
			ServerID: srv.ServerID(),
			Path:     server.DebugPath,
		})
		srv.SetSessionIssuedHandler(advertiser.SetSessionID)
	}

	sessionID := srv.GetNewSessionID()
	connectURL := srv.ConnectURL(publicHost, sessionID)

	term.InfoBlock("Debug server started", fmt.Sprintf("Connect URL: %s\nServer ID:   %s", connectURL, srv.ServerID()))
	if cfg.QR {
		printQRCode(stdout, connectURL)
	}

	if advertiser != nil {
		if err := advertiser.Start(); err != nil {
			fmt.Fprintf(stderr, "Warning: failed to start mDNS discovery: %v\n", err)
		} else {
			defer advertiser.Stop()
			term.Message("mDNS discovery: ENABLED (visible on LAN)")
		}
	}

	quit := make(chan struct{})
	var quitOnce sync.Once
	con := console.New(srv, transfer, term, term, func() {
		quitOnce.Do(func() { close(quit) })
	})
	srv.SetPromptHandler(con.PromptReady)

	term.Message("Type .help for a list of commands.")

	inputDone := make(chan error, 1)
	go func() {
		inputDone <- term.Run(con)
	}()
	defer term.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	select {
	case <-quit:
	case err := <-inputDone:
		if err != nil {
			log.Printf("serve: input error: %v", err)
		}
	case sig := <-sigCh:
		log.Printf("serve: received signal %v", sig)
	}

	term.Message("Stopping debug server.")
	return 0
}

// mergeServeConfig applies file values wherever the CLI value is unset.
// Boolean flags use the file value only if the flag was not given at all,
// so --flag=false can override the file.
func mergeServeConfig(cfg *ServeConfig, fileCfg *config.Config, explicitFlags map[string]bool) {
	if cfg.Addr == "" {
		cfg.Addr = fileCfg.Addr
	}
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultAddr
	}
	if cfg.PublicHost == "" {
		cfg.PublicHost = fileCfg.PublicHost
	}
	if cfg.HeartbeatMs == 0 {
		cfg.HeartbeatMs = fileCfg.HeartbeatMs
	}
	if cfg.SessionDB == "" {
		cfg.SessionDB = fileCfg.SessionDB
	}
	if cfg.LogFile == "" {
		cfg.LogFile = fileCfg.LogFile
	}
	if !explicitFlags["mdns"] {
		cfg.MdnsEnabled = fileCfg.MdnsEnabled
	}
	if !explicitFlags["qr"] {
		cfg.QR = fileCfg.QR
	}
	if !explicitFlags["verbose"] {
		cfg.Verbose = fileCfg.Verbose
	}
}

// routeLog points the standard logger at the log file, the console or
// nowhere. The returned file, if any, must be closed by the caller.
func routeLog(cfg *ServeConfig, term *terminal.Terminal) (*os.File, error) {
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		log.SetOutput(f)
		return f, nil
	}
	if cfg.Verbose {
		log.SetOutput(term.Writer())
		return nil, nil
	}
	log.SetOutput(io.Discard)
	return nil, nil
}

func openJournal(path string) (*storage.SQLiteStore, error) {
	if path == "" {
		var err error
		path, err = config.DefaultSessionDBPath()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return storage.NewSQLiteStore(path)
}

// printQRCode prints the connect URL as a QR code made of half-block
// characters.
func printQRCode(w io.Writer, connectURL string) {
	qr, err := qrcode.New(connectURL, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		return
	}
	fmt.Fprintln(w, "")
	fmt.Fprint(w, qr.ToSmallString(false))
	fmt.Fprintln(w, "")
}

// addrPort returns the numeric port of a host:port address, or 0.
func addrPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}
