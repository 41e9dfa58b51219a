package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/HerbHall/switchyard/internal/config"
	"github.com/HerbHall/switchyard/internal/version"
	"github.com/HerbHall/switchyard/pkg/models"
)

const (
	cmdShowInterfaces = "show interfaces"
	cmdShowArp        = "show arp"
)

func init() {
	Register(models.AdapterCLI, NewCLI)
}

// CLIAdapter polls a device over an SSH command session.
type CLIAdapter struct {
	dev     models.Device
	creds   config.Credentials
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time

	client  *ssh.Client
	ports   portCache
	traffic trafficTracker
}

// NewCLI builds an SSH command-session adapter. Only the ios dialect is
// understood.
func NewCLI(dev models.Device, creds config.Credentials, opts Options) (Adapter, error) {
	if dev.Dialect != "" && dev.Dialect != "ios" {
		return nil, fmt.Errorf("cli: unsupported dialect %q", dev.Dialect)
	}
	timeout := dev.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CLIAdapter{
		dev:     dev,
		creds:   creds,
		logger:  opts.Logger,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

func (a *CLIAdapter) addr() string {
	port := a.dev.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(a.dev.Address, strconv.Itoa(port))
}

// Connect dials the device and completes the SSH handshake.
func (a *CLIAdapter) Connect(ctx context.Context) error {
	if a.client != nil {
		return nil
	}
	if a.creds.Username == "" {
		return newError(KindAuth, a.dev.Name, "connect", errors.New("no username for credential ref"))
	}

	cfg := &ssh.ClientConfig{
		User: a.creds.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(a.creds.Password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = a.creds.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // network gear rotates host keys on reload
		Timeout:         a.timeout,
		ClientVersion:   version.SSHClientVersion(),
	}

	addr := a.addr()
	dialer := &net.Dialer{Timeout: a.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return newError(KindConnectivity, a.dev.Name, "connect", fmt.Errorf("dial %s: %w", addr, err))
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return classify(a.dev.Name, "connect", fmt.Errorf("ssh handshake: %w", err))
	}
	_ = conn.SetDeadline(time.Time{})

	a.client = ssh.NewClient(sshConn, chans, reqs)
	a.logger.Debug("ssh session established", zap.String("addr", addr))
	return nil
}

// Disconnect closes the SSH client.
func (a *CLIAdapter) Disconnect() error {
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	return err
}

// run executes one command in a new session, honouring ctx.
func (a *CLIAdapter) run(ctx context.Context, op, cmd string) (string, error) {
	if a.client == nil {
		return "", newError(KindConnectivity, a.dev.Name, op, errors.New("not connected"))
	}
	session, err := a.client.NewSession()
	if err != nil {
		return "", classify(a.dev.Name, op, fmt.Errorf("open session: %w", err))
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			var exitErr *ssh.ExitError
			if errors.As(r.err, &exitErr) {
				// IOS exits non-zero on some commands but still prints the table.
				return string(r.out), nil
			}
			return "", classify(a.dev.Name, op, fmt.Errorf("%s: %w", cmd, r.err))
		}
		return string(r.out), nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", newError(KindConnectivity, a.dev.Name, op, fmt.Errorf("%s: %w", cmd, ctx.Err()))
	}
}

func (a *CLIAdapter) readPorts(ctx context.Context, op string) (InterfaceResult, time.Time, error) {
	out, err := a.run(ctx, op, cmdShowInterfaces)
	if err != nil {
		return InterfaceResult{}, time.Time{}, err
	}
	at := a.now()
	ports, partial, err := parseIOSInterfaces(out, at)
	if err != nil {
		return InterfaceResult{}, at, newError(KindParse, a.dev.Name, op, err)
	}
	if partial {
		a.logger.Warn("partial interface output", zap.Int("ports", len(ports)))
	}
	return InterfaceResult{Ports: ports, Partial: partial}, at, nil
}

// QueryInterfaces runs "show interfaces".
func (a *CLIAdapter) QueryInterfaces(ctx context.Context) (InterfaceResult, error) {
	res, at, err := a.readPorts(ctx, "query_interfaces")
	if err != nil {
		return InterfaceResult{}, err
	}
	a.ports.store(res.Ports, at)
	return res, nil
}

// QueryHosts runs "show arp".
func (a *CLIAdapter) QueryHosts(ctx context.Context) ([]models.Host, error) {
	out, err := a.run(ctx, "query_hosts", cmdShowArp)
	if err != nil {
		return nil, err
	}
	hosts, err := parseIOSArp(out, a.dev.Name, a.now())
	if err != nil {
		return nil, newError(KindParse, a.dev.Name, "query_hosts", err)
	}
	return hosts, nil
}

// QueryTraffic derives traffic from interface counter deltas.
func (a *CLIAdapter) QueryTraffic(ctx context.Context) (*models.TrafficSample, error) {
	ports, at, ok := a.ports.take()
	if !ok {
		res, readAt, err := a.readPorts(ctx, "query_traffic")
		if err != nil {
			return nil, err
		}
		ports, at = res.Ports, readAt
	}
	return a.traffic.observe(ports, at), nil
}

// HealthCheck verifies the SSH port answers. With an open session it
// sends a keepalive request instead.
func (a *CLIAdapter) HealthCheck(ctx context.Context) error {
	if a.client != nil {
		done := make(chan error, 1)
		client := a.client
		go func() {
			_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
			done <- err
		}()
		var err error
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			_ = a.Disconnect()
			return newError(KindConnectivity, a.dev.Name, "health_check", err)
		}
		return nil
	}
	d := net.Dialer{Timeout: a.timeout}
	conn, err := d.DialContext(ctx, "tcp", a.addr())
	if err != nil {
		return newError(KindConnectivity, a.dev.Name, "health_check", err)
	}
	return conn.Close()
}

func (a *CLIAdapter) DataSource() models.DataSource { return models.SourceSSHCLI }
func (a *CLIAdapter) Family() models.AdapterType    { return models.AdapterCLI }

var _ Adapter = (*CLIAdapter)(nil)
