package changefeed

import (
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// EmbeddedServer runs an in-process nats-server for development and tests,
// listening on a random local port.
type EmbeddedServer struct {
	server *server.Server
	nc     *nats.Conn
	logger zerolog.Logger
}

func NewEmbeddedServer(storeDir string, logger zerolog.Logger) (*EmbeddedServer, error) {
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		HTTPPort:  -1,
		JetStream: true,
		StoreDir:  storeDir,
		NoSigs:    true,
		NoLog:     true,
	}

	if err := os.MkdirAll(opts.StoreDir, 0o755); err != nil {
		return nil, fmt.Errorf("create nats store dir: %w", err)
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}
	ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready")
	}

	nc, err := nats.Connect(ns.ClientURL(), nats.Name("bedboard-embedded"))
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connect embedded nats: %w", err)
	}

	logger.Info().Str("client_url", ns.ClientURL()).Msg("embedded nats server started")
	return &EmbeddedServer{server: ns, nc: nc, logger: logger}, nil
}

func (es *EmbeddedServer) ClientURL() string {
	return es.server.ClientURL()
}

// Bus returns a bus on the server's own client connection.
func (es *EmbeddedServer) Bus() *Bus {
	return NewBus(es.nc, es.logger)
}

func (es *EmbeddedServer) Shutdown() {
	if es.nc != nil {
		es.nc.Close()
	}
	if es.server != nil {
		es.server.Shutdown()
		es.server.WaitForShutdown()
	}
	es.logger.Info().Msg("embedded nats server stopped")
}
