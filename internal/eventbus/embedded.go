package eventbus

import (
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// EmbeddedConfig configures the in-process NATS/JetStream server started
// for external event fan-out. Grounded on the teacher's
// internal/daemon.NATSConfig/StartNATSServer.
type EmbeddedConfig struct {
	Port     int
	StoreDir string
}

// Embedded wraps a started NATS server plus an in-process connection and
// JetStream context, ready to hand to Bus.SetJetStream.
type Embedded struct {
	server *server.Server
	conn   *nats.Conn
	js     nats.JetStreamContext
	port   int
}

// StartEmbedded starts an in-process NATS server with JetStream enabled
// and connects to it, mirroring the teacher's StartNATSServer lifecycle
// (MkdirAll the store dir, start, wait ReadyForConnections, dial
// in-process). NoLog/NoSigs are set since the daemon owns its own
// logging and signal handling.
func StartEmbedded(cfg EmbeddedConfig) (*Embedded, error) {
	if err := os.MkdirAll(cfg.StoreDir, 0o700); err != nil {
		return nil, fmt.Errorf("create NATS store dir: %w", err)
	}

	opts := &server.Options{
		ServerName:         "swarmd",
		Host:               "127.0.0.1",
		Port:               cfg.Port,
		JetStream:          true,
		JetStreamMaxMemory: 256 << 20,
		JetStreamMaxStore:  1 << 30,
		StoreDir:           cfg.StoreDir,
		NoLog:              true,
		NoSigs:             true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready after 10s")
	}

	nc, err := nats.Connect(fmt.Sprintf("nats://127.0.0.1:%d", cfg.Port), nats.Name("swarmd-internal"))
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("in-process NATS connection: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("open jetstream context: %w", err)
	}
	if err := EnsureStream(js); err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, err
	}

	return &Embedded{server: ns, conn: nc, js: js, port: cfg.Port}, nil
}

// JetStream returns the JetStream context, ready for Bus.SetJetStream.
func (e *Embedded) JetStream() nats.JetStreamContext { return e.js }

// Shutdown drains the in-process connection and stops the server.
func (e *Embedded) Shutdown() {
	if e.conn != nil {
		e.conn.Drain()
		e.conn.Close()
	}
	if e.server != nil {
		e.server.Shutdown()
		e.server.WaitForShutdown()
	}
}
