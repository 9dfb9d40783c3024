// Command thing-server runs a Thing server exposing a simulated optical
// spectrometer over the framed TCP transport and the HTTP gateway.
//
// This command demonstrates a complete server with:
//   - CLI argument parsing with config file support
//   - Property persistence across restarts
//   - mDNS discovery advertising
//   - Prometheus metrics on the HTTP gateway
//   - Binary protocol trace capture
//
// Usage:
//
//	thing-server [flags]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-address string     TCP listen address (overrides config)
//	-http string        HTTP gateway address (overrides config)
//	-id string          Server ID (overrides config)
//	-thing string       Thing ID of the spectrometer (default "spectrometer-1")
//	-serial string      Spectrometer serial number (auto-generated if empty)
//	-state-file string  Property persistence path (overrides config)
//	-trace string       Binary protocol trace path (overrides config)
//	-log-level string   Log level: debug, info, warn, error (overrides config)
//	-no-discovery       Disable mDNS advertising
//
// Examples:
//
//	# Start with defaults (TCP :7440, HTTP :8080)
//	thing-server
//
//	# Start from a config file with protocol tracing
//	thing-server -config /etc/hololinked/server.yaml -trace /tmp/server.trace
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hololinked-dev/hololinked-go/pkg/codec"
	"github.com/hololinked-dev/hololinked-go/pkg/config"
	"github.com/hololinked-dev/hololinked-go/pkg/discovery"
	"github.com/hololinked-dev/hololinked-go/pkg/dispatch"
	"github.com/hololinked-dev/hololinked-go/pkg/events"
	"github.com/hololinked-dev/hololinked-go/pkg/examples"
	"github.com/hololinked-dev/hololinked-go/pkg/gateway"
	"github.com/hololinked-dev/hololinked-go/pkg/log"
	"github.com/hololinked-dev/hololinked-go/pkg/metric"
	"github.com/hololinked-dev/hololinked-go/pkg/persistence"
	"github.com/hololinked-dev/hololinked-go/pkg/transport"
	"github.com/hololinked-dev/hololinked-go/pkg/version"
)

var flags struct {
	configFile  string
	address     string
	httpAddress string
	serverID    string
	thingID     string
	serial      string
	stateFile   string
	traceFile   string
	logLevel    string
	noDiscovery bool
}

func init() {
	flag.StringVar(&flags.configFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.address, "address", "", "TCP listen address (overrides config)")
	flag.StringVar(&flags.httpAddress, "http", "", "HTTP gateway address (overrides config)")
	flag.StringVar(&flags.serverID, "id", "", "Server ID (overrides config)")
	flag.StringVar(&flags.thingID, "thing", "spectrometer-1", "Thing ID of the spectrometer")
	flag.StringVar(&flags.serial, "serial", "", "Spectrometer serial number (auto-generated if empty)")
	flag.StringVar(&flags.stateFile, "state-file", "", "Property persistence path (overrides config)")
	flag.StringVar(&flags.traceFile, "trace", "", "Binary protocol trace path (overrides config)")
	flag.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.BoolVar(&flags.noDiscovery, "no-discovery", false, "Disable mDNS advertising")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(flags.configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(&cfg)

	logger, err := setupLogging(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// applyOverrides layers command-line flags on top of the loaded config.
func applyOverrides(cfg *config.Config) {
	if flags.address != "" {
		cfg.Server.Address = flags.address
	}
	if flags.httpAddress != "" {
		cfg.HTTP.Address = flags.httpAddress
		cfg.HTTP.Enabled = true
	}
	if flags.serverID != "" {
		cfg.Server.ID = flags.serverID
	}
	if flags.stateFile != "" {
		cfg.Persistence.StateFile = flags.stateFile
	}
	if flags.traceFile != "" {
		cfg.Log.TraceFile = flags.traceFile
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.noDiscovery {
		cfg.Discovery.Enabled = false
	}
	if cfg.Server.ID == "" {
		cfg.Server.ID = fmt.Sprintf("thing-server-%d", time.Now().Unix()%10000)
	}
	if flags.serial == "" {
		flags.serial = fmt.Sprintf("SIM-%06d", time.Now().Unix()%1000000)
	}
}

func setupLogging(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}

func run(cfg config.Config, logger *slog.Logger) error {
	logger.Info("Starting Thing server",
		"id", cfg.Server.ID,
		"address", cfg.Server.Address,
		"http", cfg.HTTP.Enabled,
		"discovery", cfg.Discovery.Enabled)

	spectrometer, err := examples.NewSpectrometer(examples.SpectrometerConfig{
		ID:           flags.thingID,
		SerialNumber: flags.serial,
	})
	if err != nil {
		return fmt.Errorf("failed to create spectrometer: %w", err)
	}
	defer spectrometer.Close()

	// Restore persisted property values before the Thing is reachable.
	var store *persistence.Store
	if cfg.Persistence.StateFile != "" {
		store = persistence.NewStore(cfg.Persistence.StateFile, logger)
		if err := store.Load(); err != nil {
			return fmt.Errorf("failed to load state file: %w", err)
		}
		store.Restore(spectrometer.Thing())
		spectrometer.Thing().SetValueChangedHook(store.Hook(flags.thingID))
	}

	metrics := metric.NewMetrics()

	publisher := events.NewPublisher(events.Options{
		QueueCapacity: cfg.Events.QueueCapacity,
		MinInterval:   cfg.Events.MinInterval.Std(),
		Observer:      metrics,
	})
	defer publisher.Close()

	dispatcher := dispatch.New(publisher, dispatch.Options{
		Timeout:   cfg.Dispatch.Timeout.Std(),
		QueueSize: cfg.Dispatch.QueueSize,
		Logger:    logger,
		Observer:  metrics,
	})
	defer dispatcher.Close()

	if err := dispatcher.Attach(spectrometer.Thing()); err != nil {
		return fmt.Errorf("failed to attach spectrometer: %w", err)
	}
	spectrometer.Bind(publisher)

	var trace *log.FileLogger
	if cfg.Log.TraceFile != "" {
		trace, err = log.NewFileLogger(cfg.Log.TraceFile)
		if err != nil {
			return fmt.Errorf("failed to open trace file: %w", err)
		}
		defer trace.Close()
		logger.Info("Protocol tracing enabled", "path", cfg.Log.TraceFile)
	}

	serverConfig := transport.ServerConfig{
		Address:  cfg.Server.Address,
		ServerID: cfg.Server.ID,
		Logger:   logger,
		OnConnect: func(conn *transport.ServerConn) {
			metrics.ConnectionOpened()
		},
		OnDisconnect: func(conn *transport.ServerConn) {
			metrics.ConnectionClosed()
		},
	}
	if cfg.Server.MaxMessageSize > 0 {
		serverConfig.MaxMessageSize = cfg.Server.MaxMessageSize
	}
	if trace != nil {
		serverConfig.Trace = trace
	}
	if cfg.Server.TLS.Enabled() {
		serverConfig.TLS, err = loadTLS(cfg.Server.TLS)
		if err != nil {
			return err
		}
	}

	server, err := transport.NewServer(dispatcher, serverConfig)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer server.Stop()
	logger.Info("TCP transport listening", "address", server.Addr().String())

	var gw *gateway.Gateway
	if cfg.HTTP.Enabled {
		gw, err = gateway.New(dispatcher, gateway.Config{
			Address:  cfg.HTTP.Address,
			Logger:   logger,
			Metrics:  metrics.Handler(),
			Observer: metrics,
		})
		if err != nil {
			return fmt.Errorf("failed to create HTTP gateway: %w", err)
		}
		if err := gw.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP gateway: %w", err)
		}
		defer gw.Stop()
		logger.Info("HTTP gateway listening", "address", gw.Addr())
	}

	var announcer *discovery.Announcer
	if cfg.Discovery.Enabled {
		announcer, err = startDiscovery(cfg, server.Addr(), gw)
		if err != nil {
			// Discovery is best-effort; the server stays reachable by
			// address without it.
			logger.Warn("Discovery unavailable", "error", err)
		} else {
			defer announcer.Stop()
			instance := announcer.Info().Instance
			if instance == "" {
				instance = cfg.Server.ID
			}
			logger.Info("mDNS advertising", "instance", instance)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("Shutting down", "signal", sig.String())

	if store != nil {
		if err := store.Save(); err != nil {
			logger.Error("Failed to save state", "error", err)
		}
	}
	return nil
}

// loadTLS reads the PEM files named in the config.
func loadTLS(cfg config.TLSConfig) (*transport.TLSConfig, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	out := &transport.TLSConfig{Certificate: cert}

	if cfg.ClientCAFile != "" {
		pem, err := os.ReadFile(cfg.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.ClientCAFile)
		}
		out.ClientCAs = pool
	}
	return out, nil
}

func startDiscovery(cfg config.Config, addr net.Addr, gw *gateway.Gateway) (*discovery.Announcer, error) {
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to determine listen port: %w", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid listen port %q: %w", portStr, err)
	}

	info := discovery.ServerInfo{
		Instance: cfg.Discovery.Instance,
		ServerID: cfg.Server.ID,
		Port:     uint16(port),
		Things:   []string{flags.thingID},
		Codecs:   []string{codec.TagJSON, codec.TagCBOR},
		Version:  version.Current,
	}
	if gw != nil {
		info.HTTPAddress = gw.Addr()
	}

	advertiser, err := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
	if err != nil {
		return nil, err
	}

	announcer := discovery.NewAnnouncer(advertiser, info)
	if err := announcer.Start(context.Background()); err != nil {
		advertiser.Stop()
		return nil, err
	}
	return announcer, nil
}
