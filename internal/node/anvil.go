package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// anvilDevKey is the first of anvil's well-known development accounts.
const anvilDevKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const (
	defaultAnvilBinary  = "anvil"
	defaultStartTimeout = 10 * time.Second
)

// AnvilLauncher spawns a local anvil process per launch and connects to it
// over HTTP JSON-RPC.
type AnvilLauncher struct {
	// Binary is the anvil executable. Defaults to "anvil" on PATH.
	Binary string

	// Port to listen on. Zero picks a free port.
	Port int

	// Args are appended to the anvil command line.
	Args []string

	// StartTimeout bounds how long to wait for the RPC endpoint.
	StartTimeout time.Duration

	// PollInterval overrides the receipt polling interval.
	PollInterval time.Duration

	Logger *slog.Logger
}

// Launch implements Launcher.
func (l AnvilLauncher) Launch(ctx context.Context) (*Node, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "anvil"))

	binary := l.Binary
	if binary == "" {
		binary = defaultAnvilBinary
	}
	port := l.Port
	if port == 0 {
		p, err := freePort()
		if err != nil {
			return nil, fmt.Errorf("node: anvil: %w", err)
		}
		port = p
	}
	timeout := l.StartTimeout
	if timeout <= 0 {
		timeout = defaultStartTimeout
	}

	args := append([]string{"--port", strconv.Itoa(port), "--silent"}, l.Args...)
	cmd := exec.Command(binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("node: anvil: start %s: %w", binary, err)
	}
	exited := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(exited)
	}()

	kill := func() error {
		select {
		case <-exited:
			return nil
		default:
		}
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("node: anvil: kill: %w", err)
		}
		<-exited
		return nil
	}

	url := fmt.Sprintf("http://127.0.0.1:%d", port)
	startCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := waitForRPC(startCtx, url, exited)
	if err != nil {
		select {
		case <-exited:
			err = fmt.Errorf("%w (exit: %v)", err, waitErr)
		default:
		}
		_ = kill()
		return nil, fmt.Errorf("node: anvil: %w", err)
	}

	key, err := crypto.HexToECDSA(anvilDevKey)
	if err != nil {
		client.Close()
		_ = kill()
		return nil, fmt.Errorf("node: anvil: dev key: %w", err)
	}
	p, err := NewProvider(ctx, client, key, WithPollInterval(l.PollInterval))
	if err != nil {
		client.Close()
		_ = kill()
		return nil, fmt.Errorf("node: anvil: %w", err)
	}

	logger.Info("anvil started", slog.String("url", url), slog.Int("pid", cmd.Process.Pid))
	return New(p, func() error {
		client.Close()
		err := kill()
		logger.Info("anvil stopped", slog.String("url", url))
		return err
	}), nil
}

func waitForRPC(ctx context.Context, url string, exited <-chan struct{}) (*ethclient.Client, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		client, err := ethclient.DialContext(ctx, url)
		if err == nil {
			if _, err = client.ChainID(ctx); err == nil {
				return client, nil
			}
			client.Close()
		}
		select {
		case <-exited:
			return nil, errors.New("process exited before rpc was ready")
		case <-ctx.Done():
			return nil, fmt.Errorf("rpc %s not ready: %w", url, ctx.Err())
		case <-ticker.C:
		}
	}
}

func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("pick free port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
