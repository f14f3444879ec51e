package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ethercflow/eRPC/internal/logger"
	"github.com/ethercflow/eRPC/pkg/config"
	"github.com/ethercflow/eRPC/pkg/nexus"
	"github.com/ethercflow/eRPC/pkg/rpc"
	"github.com/ethercflow/eRPC/pkg/sm"
	"github.com/ethercflow/eRPC/pkg/transport"
)

var (
	helloAppTID     uint8
	helloServerHost string
	helloServerTID  uint8
)

var helloCmd = &cobra.Command{
	Use:   "hello",
	Short: "Minimal end-to-end example over the session management plane",
}

var helloServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the hello-world server endpoint",
	Long: `Run a server endpoint: host a Nexus, register one RPC endpoint, and
print every datapath payload received on admitted sessions.`,
	RunE: runHelloServer,
}

var helloClientCmd = &cobra.Command{
	Use:   "client",
	Short: "Run the hello-world client endpoint",
	Long: `Connect a session to a hello server, send one datapath message, then
disconnect and exit.`,
	RunE: runHelloClient,
}

func init() {
	helloCmd.AddCommand(helloServerCmd)
	helloCmd.AddCommand(helloClientCmd)

	helloCmd.PersistentFlags().Uint8Var(&helloAppTID, "app-tid", 0, "App TID of the local endpoint")
	helloClientCmd.Flags().StringVar(&helloServerHost, "server", "localhost", "Server hostname (host or host:port)")
	helloClientCmd.Flags().Uint8Var(&helloServerTID, "server-tid", 0, "App TID of the server endpoint")
}

// newEndpoint builds the Nexus, transport, and RPC endpoint from the
// process configuration.
func newEndpoint(cfg *config.Config, handler rpc.SessionMgmtHandler) (*nexus.Nexus, *rpc.Rpc, error) {
	m := startMetrics(cfg)

	nx, err := nexus.New(nexus.Config{
		URI:      cfg.Nexus.URI(),
		DropProb: cfg.Nexus.DropProb,
		Metrics:  m,
	})
	if err != nil {
		return nil, nil, err
	}

	trans, err := transport.NewUDP(transport.UDPConfig{
		Host:     cfg.Nexus.Host,
		Port:     cfg.Transport.Port,
		RingSize: cfg.Transport.RingSize,
	})
	if err != nil {
		nx.Stop()
		return nil, nil, err
	}

	r, err := rpc.New(nx, nil, helloAppTID, handler, trans, []uint8{0}, m)
	if err != nil {
		_ = trans.Close()
		nx.Stop()
		return nil, nil, err
	}
	return nx, r, nil
}

func runHelloServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	handler := func(session *sm.Session, event sm.EventType, errType sm.ErrType, _ any) {
		logger.Info("Session event",
			logger.KeyEvent, event.String(),
			logger.KeyErrType, errType.String(),
			logger.KeySessionNum, session.LocalSessionNum())
	}

	nx, r, err := newEndpoint(cfg, handler)
	if err != nil {
		return err
	}
	defer nx.Stop()
	defer r.Close()

	r.SetMsgHandler(func(payload []byte) {
		fmt.Printf("%s\n", payload)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Hello server running", logger.KeyAppTID, helloAppTID)
	for {
		select {
		case <-sigCh:
			logger.Info("Shutting down")
			return nil
		default:
			r.RunEventLoopOnce()
		}
	}
}

func runHelloClient(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	done := false
	handler := func(session *sm.Session, event sm.EventType, errType sm.ErrType, _ any) {
		logger.Info("Session event",
			logger.KeyEvent, event.String(),
			logger.KeyErrType, errType.String(),
			logger.KeySessionNum, session.LocalSessionNum())
		if event == sm.EventConnectFailed || event == sm.EventDisconnected {
			done = true
		}
	}

	nx, r, err := newEndpoint(cfg, handler)
	if err != nil {
		return err
	}
	defer nx.Stop()
	defer r.Close()

	session, err := r.CreateSession(0, helloServerHost, helloServerTID, 0)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	for !r.IsConnected(session) {
		if session.State == sm.StateError {
			return fmt.Errorf("session connect failed")
		}
		r.RunEventLoopOnce()
	}

	if err := r.SendRequest(session, []byte("hello")); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	r.RunEventLoopTimeout(100)

	if !r.DestroySession(session) {
		return fmt.Errorf("destroy session refused")
	}
	for !done {
		r.RunEventLoopOnce()
	}
	return nil
}
