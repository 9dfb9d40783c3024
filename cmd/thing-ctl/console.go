package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/hololinked-dev/hololinked-go/pkg/codec"
	"github.com/hololinked-dev/hololinked-go/pkg/discovery"
	"github.com/hololinked-dev/hololinked-go/pkg/log"
	"github.com/hololinked-dev/hololinked-go/pkg/transport"
	"github.com/hololinked-dev/hololinked-go/pkg/version"
	"github.com/hololinked-dev/hololinked-go/pkg/wire"
)

// ConsoleConfig configures the interactive console.
type ConsoleConfig struct {
	ClientID string
	Codec    string
	ThingID  string
	Timeout  time.Duration
	Insecure bool
}

// Console is the interactive command loop. It owns at most one client
// connection at a time; event frames print through the readline instance
// so they do not clobber the prompt.
type Console struct {
	config ConsoleConfig
	rl     *readline.Instance
	trace  log.Logger

	mu      sync.Mutex
	client  *transport.Client
	thingID string
	subs    map[string]string // "thing/event" -> subscription id
}

// NewConsole creates the console and its readline instance.
func NewConsole(config ConsoleConfig) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "thing> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{
		config:  config,
		rl:      rl,
		thingID: config.ThingID,
		subs:    make(map[string]string),
	}, nil
}

// SetTrace enables protocol tracing on future connections.
func (c *Console) SetTrace(trace log.Logger) {
	c.trace = trace
}

// Close releases the readline instance and any open connection.
func (c *Console) Close() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client != nil {
		client.Close()
	}
	c.rl.Close()
}

// Connect dials a server, replacing any existing connection.
func (c *Console) Connect(ctx context.Context, addr string) error {
	cfg := transport.ClientConfig{
		Address:        addr,
		ClientID:       c.config.ClientID,
		Codec:          c.config.Codec,
		RequestTimeout: c.config.Timeout,
		Trace:          c.trace,
		OnDisconnect: func(err error) {
			if err != nil {
				fmt.Fprintf(c.rl.Stdout(), "Connection lost: %v\n", err)
			}
		},
	}
	if c.config.Insecure {
		cfg.TLS = &transport.TLSConfig{InsecureSkipVerify: true}
	}

	client, err := transport.Dial(ctx, cfg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.client
	c.client = client
	c.subs = make(map[string]string)
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	fmt.Fprintf(c.rl.Stdout(), "Connected to %s (server %s, codec %s)\n",
		addr, client.ServerID(), client.Codec().Tag())
	return nil
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "discover", "d":
			c.cmdDiscover(ctx, args)

		case "connect":
			c.cmdConnect(ctx, args)

		case "disconnect":
			c.cmdDisconnect()

		case "use":
			c.cmdUse(args)

		case "read", "r":
			c.cmdRead(ctx, args)

		case "write", "w":
			c.cmdWrite(ctx, args)

		case "invoke", "i":
			c.cmdInvoke(ctx, args)

		case "readall", "ra":
			c.cmdReadAll(ctx)

		case "subscribe", "sub":
			c.cmdSubscribe(ctx, args)

		case "unsubscribe", "unsub":
			c.cmdUnsubscribe(ctx, args)

		case "subs":
			c.cmdSubs()

		case "status":
			c.cmdStatus()

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Thing Client Commands:
  Discovery & Connection:
    discover [seconds]           - Browse for Thing servers via mDNS
    connect <host:port>          - Connect to a server
    disconnect                   - Close the current connection
    use <thing-id>               - Set the target Thing for commands
    status                       - Show connection state

  Properties & Actions:
    read <property>              - Read a property value
    write <property> <value>     - Write a property (value is JSON)
    readall                      - Read all properties of the Thing
    invoke <action> [args]       - Invoke an action (args is JSON)

  Events:
    subscribe <event>            - Subscribe; frames print as they arrive
    unsubscribe <event>          - Cancel a subscription
    subs                         - List active subscriptions

  General:
    help                         - Show this help
    quit                         - Exit`)
}

// connected returns the current client and target Thing, or prints the
// missing precondition.
func (c *Console) connected() (*transport.Client, string, bool) {
	c.mu.Lock()
	client, thingID := c.client, c.thingID
	c.mu.Unlock()

	if client == nil {
		fmt.Fprintln(c.rl.Stdout(), "Not connected (use 'connect <host:port>')")
		return nil, "", false
	}
	if thingID == "" {
		fmt.Fprintln(c.rl.Stdout(), "No target Thing (use 'use <thing-id>')")
		return nil, "", false
	}
	return client, thingID, true
}

func (c *Console) cmdDiscover(ctx context.Context, args []string) {
	timeout := 3 * time.Second
	if len(args) > 0 {
		secs, err := strconv.Atoi(args[0])
		if err != nil || secs <= 0 {
			fmt.Fprintln(c.rl.Stdout(), "Usage: discover [seconds]")
			return
		}
		timeout = time.Duration(secs) * time.Second
	}

	browser, err := discovery.NewMDNSBrowser(discovery.BrowserConfig{})
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed to start browser: %v\n", err)
		return
	}
	defer browser.Stop()

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	services, err := browser.Browse(browseCtx)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Browse failed: %v\n", err)
		return
	}

	fmt.Fprintf(c.rl.Stdout(), "Browsing for %s...\n", timeout)
	found := 0
	for svc := range services {
		found++
		addr := svc.Host
		if len(svc.Addresses) > 0 {
			addr = svc.Addresses[0]
		}
		note := ""
		if err := version.CheckCompatible(svc.Version); err != nil {
			note = " (incompatible)"
		}
		fmt.Fprintf(c.rl.Stdout(), "  %s%s\n", svc.InstanceName, note)
		fmt.Fprintf(c.rl.Stdout(), "    server:  %s\n", svc.ServerID)
		fmt.Fprintf(c.rl.Stdout(), "    address: %s\n", net.JoinHostPort(addr, strconv.Itoa(int(svc.Port))))
		fmt.Fprintf(c.rl.Stdout(), "    things:  %s\n", strings.Join(svc.Things, ", "))
		if len(svc.Codecs) > 0 {
			fmt.Fprintf(c.rl.Stdout(), "    codecs:  %s\n", strings.Join(svc.Codecs, ", "))
		}
		if svc.HTTPAddress != "" {
			fmt.Fprintf(c.rl.Stdout(), "    http:    %s\n", svc.HTTPAddress)
		}
	}
	if found == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No servers found")
	}
}

func (c *Console) cmdConnect(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: connect <host:port>")
		return
	}
	if err := c.Connect(ctx, args[0]); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Failed to connect: %v\n", err)
	}
}

func (c *Console) cmdDisconnect() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.subs = make(map[string]string)
	c.mu.Unlock()

	if client == nil {
		fmt.Fprintln(c.rl.Stdout(), "Not connected")
		return
	}
	client.Close()
	fmt.Fprintln(c.rl.Stdout(), "Disconnected")
}

func (c *Console) cmdUse(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: use <thing-id>")
		return
	}
	c.mu.Lock()
	c.thingID = args[0]
	c.mu.Unlock()
	fmt.Fprintf(c.rl.Stdout(), "Target Thing: %s\n", args[0])
}

func (c *Console) cmdRead(ctx context.Context, args []string) {
	client, thingID, ok := c.connected()
	if !ok {
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: read <property>")
		return
	}

	var value any
	if err := client.ReadProperty(ctx, thingID, args[0], &value); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Read failed: %v\n", err)
		return
	}
	c.printValue(args[0], value)
}

func (c *Console) cmdWrite(ctx context.Context, args []string) {
	client, thingID, ok := c.connected()
	if !ok {
		return
	}
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: write <property> <value>")
		return
	}

	value := parseValue(strings.Join(args[1:], " "))
	var adjusted any
	if err := client.WriteProperty(ctx, thingID, args[0], value, &adjusted); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Write failed: %v\n", err)
		return
	}
	if adjusted != nil {
		fmt.Fprintf(c.rl.Stdout(), "OK (adjusted to %v)\n", adjusted)
	} else {
		fmt.Fprintln(c.rl.Stdout(), "OK")
	}
}

func (c *Console) cmdInvoke(ctx context.Context, args []string) {
	client, thingID, ok := c.connected()
	if !ok {
		return
	}
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: invoke <action> [args]")
		return
	}

	var params any
	if len(args) > 1 {
		params = parseValue(strings.Join(args[1:], " "))
	}

	var result any
	if err := client.InvokeAction(ctx, thingID, args[0], params, &result); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invoke failed: %v\n", err)
		return
	}
	if result != nil {
		c.printValue(args[0], result)
	} else {
		fmt.Fprintln(c.rl.Stdout(), "OK")
	}
}

func (c *Console) cmdReadAll(ctx context.Context) {
	client, thingID, ok := c.connected()
	if !ok {
		return
	}

	values, err := client.ReadAllProperties(ctx, thingID)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Read failed: %v\n", err)
		return
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.printValue(name, values[name])
	}
}

func (c *Console) cmdSubscribe(ctx context.Context, args []string) {
	client, thingID, ok := c.connected()
	if !ok {
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: subscribe <event>")
		return
	}
	event := args[0]
	key := thingID + "/" + event

	c.mu.Lock()
	_, exists := c.subs[key]
	c.mu.Unlock()
	if exists {
		fmt.Fprintf(c.rl.Stdout(), "Already subscribed to %s\n", key)
		return
	}

	payloadCodec := client.Codec()
	sub, err := client.Subscribe(ctx, thingID, event, func(frame *wire.Event) {
		c.printEvent(key, frame, payloadCodec)
	})
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Subscribe failed: %v\n", err)
		return
	}

	c.mu.Lock()
	c.subs[key] = sub
	c.mu.Unlock()
	fmt.Fprintf(c.rl.Stdout(), "Subscribed to %s (%s)\n", key, sub)
}

func (c *Console) cmdUnsubscribe(ctx context.Context, args []string) {
	client, thingID, ok := c.connected()
	if !ok {
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: unsubscribe <event>")
		return
	}
	event := args[0]
	key := thingID + "/" + event

	c.mu.Lock()
	sub, exists := c.subs[key]
	delete(c.subs, key)
	c.mu.Unlock()
	if !exists {
		fmt.Fprintf(c.rl.Stdout(), "Not subscribed to %s\n", key)
		return
	}

	if err := client.Unsubscribe(ctx, thingID, event, sub); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Unsubscribe failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Unsubscribed from %s\n", key)
}

func (c *Console) cmdSubs() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.subs))
	for key := range c.subs {
		keys = append(keys, key)
	}
	c.mu.Unlock()

	if len(keys) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No active subscriptions")
		return
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(c.rl.Stdout(), "  %s\n", key)
	}
}

func (c *Console) cmdStatus() {
	c.mu.Lock()
	client, thingID, subs := c.client, c.thingID, len(c.subs)
	c.mu.Unlock()

	if client == nil {
		fmt.Fprintln(c.rl.Stdout(), "Not connected")
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "State:         %s\n", client.State())
	fmt.Fprintf(c.rl.Stdout(), "Server:        %s\n", client.ServerID())
	fmt.Fprintf(c.rl.Stdout(), "Codec:         %s\n", client.Codec().Tag())
	fmt.Fprintf(c.rl.Stdout(), "Target Thing:  %s\n", orNone(thingID))
	fmt.Fprintf(c.rl.Stdout(), "Subscriptions: %d\n", subs)
}

func (c *Console) printValue(name string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "%s = %v\n", name, value)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "%s = %s\n", name, truncate(string(data), 200))
}

func (c *Console) printEvent(key string, frame *wire.Event, payloadCodec codec.Codec) {
	// Re-render the payload as JSON so CBOR connections stay readable.
	payload := string(frame.Payload)
	var value any
	if err := payloadCodec.Decode(frame.Payload, &value); err == nil {
		if data, err := json.Marshal(value); err == nil {
			payload = string(data)
		}
	}
	payload = truncate(payload, 120)
	if frame.Dropped > 0 {
		fmt.Fprintf(c.rl.Stdout(), "[%s] seq=%d dropped=%d %s\n",
			key, frame.Seq, frame.Dropped, payload)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "[%s] seq=%d %s\n", key, frame.Seq, payload)
}

// parseValue interprets the argument as JSON, falling back to a plain
// string so `write title hello` works without quotes.
func parseValue(s string) any {
	var value any
	if err := json.Unmarshal([]byte(s), &value); err != nil {
		return s
	}
	return value
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
