package adapter

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/HerbHall/switchyard/internal/config"
	"github.com/HerbHall/switchyard/pkg/models"
)

// sshTestServer answers exec requests with canned command output.
type sshTestServer struct {
	ln       net.Listener
	outputs  map[string]string
	mu       sync.Mutex
	commands []string
}

func newSSHTestServer(t *testing.T, user, password string, outputs map[string]string) *sshTestServer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == user && string(pass) == password {
				return nil, nil
			}
			return nil, errAuthRejected
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &sshTestServer{ln: ln, outputs: outputs}
	go s.serve(cfg)
	t.Cleanup(func() { ln.Close() })
	return s
}

var errAuthRejected = errors.New("rejected")

func (s *sshTestServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *sshTestServer) serve(cfg *ssh.ServerConfig) {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}
		go func() {
			conn, chans, reqs, err := ssh.NewServerConn(nc, cfg)
			if err != nil {
				nc.Close()
				return
			}
			defer conn.Close()
			go ssh.DiscardRequests(reqs)
			for nch := range chans {
				if nch.ChannelType() != "session" {
					_ = nch.Reject(ssh.UnknownChannelType, "unsupported")
					continue
				}
				ch, in, err := nch.Accept()
				if err != nil {
					continue
				}
				go s.handleSession(ch, in)
			}
		}()
	}
}

func (s *sshTestServer) handleSession(ch ssh.Channel, in <-chan *ssh.Request) {
	defer ch.Close()
	for req := range in {
		if req.Type != "exec" {
			_ = req.Reply(false, nil)
			continue
		}
		// payload is a uint32 length-prefixed string
		n := binary.BigEndian.Uint32(req.Payload[:4])
		cmd := string(req.Payload[4 : 4+n])
		_ = req.Reply(true, nil)

		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		s.mu.Unlock()

		status := uint32(0)
		out, ok := s.outputs[cmd]
		if !ok {
			out = "% Invalid input detected at '^' marker.\n"
			status = 1
		}
		_, _ = ch.Write([]byte(out))
		payload := make([]byte, 4)
		binary.BigEndian.PutUint32(payload, status)
		_, _ = ch.SendRequest("exit-status", false, payload)
		go ssh.DiscardRequests(in)
		return
	}
}

func newTestCLI(t *testing.T, srv *sshTestServer, user, pass string) *CLIAdapter {
	t.Helper()
	dev := models.Device{
		Name:    "core",
		Address: "127.0.0.1",
		Port:    srv.port(),
		Adapter: models.AdapterCLI,
		Dialect: "ios",
		Timeout: 3 * time.Second,
	}
	a, err := NewCLI(dev, config.Credentials{Username: user, Password: pass}, Options{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewCLI() error = %v", err)
	}
	return a.(*CLIAdapter)
}

func TestCLIAdapterPollCycle(t *testing.T) {
	srv := newSSHTestServer(t, "admin", "pw", map[string]string{
		cmdShowInterfaces: iosShowInterfaces,
		cmdShowArp:        iosShowArp,
	})
	a := newTestCLI(t, srv, "admin", "pw")
	ctx := context.Background()

	if err := a.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer a.Disconnect()

	res, err := a.QueryInterfaces(ctx)
	if err != nil {
		t.Fatalf("QueryInterfaces() error = %v", err)
	}
	if len(res.Ports) != 2 {
		t.Errorf("len(Ports) = %d, want 2", len(res.Ports))
	}

	hosts, err := a.QueryHosts(ctx)
	if err != nil {
		t.Fatalf("QueryHosts() error = %v", err)
	}
	if len(hosts) != 3 {
		t.Errorf("len(hosts) = %d, want 3", len(hosts))
	}

	// First traffic query has no baseline and must not invent one.
	sample, err := a.QueryTraffic(ctx)
	if err != nil {
		t.Fatalf("QueryTraffic() error = %v", err)
	}
	if sample != nil {
		t.Errorf("first QueryTraffic() = %+v, want nil", sample)
	}

	// The cached ports were consumed, so the second query runs the command again.
	if _, err := a.QueryTraffic(ctx); err != nil {
		t.Fatalf("second QueryTraffic() error = %v", err)
	}
	srv.mu.Lock()
	got := len(srv.commands)
	srv.mu.Unlock()
	if got != 3 {
		t.Errorf("commands run = %d, want 3", got)
	}

	if err := a.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() with session error = %v", err)
	}
}

func TestCLIAdapterAuthFailure(t *testing.T) {
	srv := newSSHTestServer(t, "admin", "pw", nil)
	a := newTestCLI(t, srv, "admin", "wrong")

	err := a.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect() error = nil, want auth error")
	}
	if KindOf(err) != KindAuth {
		t.Errorf("KindOf() = %v, want auth (%v)", KindOf(err), err)
	}
}

func TestCLIAdapterUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	dev := models.Device{Name: "core", Address: "127.0.0.1", Port: port, Timeout: time.Second}
	a, _ := NewCLI(dev, config.Credentials{Username: "u", Password: "p"}, Options{Logger: zap.NewNop()})

	if err := a.HealthCheck(context.Background()); KindOf(err) != KindConnectivity {
		t.Errorf("HealthCheck() kind = %v, want connectivity (%v)", KindOf(err), err)
	}
	if err := a.Connect(context.Background()); KindOf(err) != KindConnectivity {
		t.Errorf("Connect() kind = %v, want connectivity (%v)", KindOf(err), err)
	}
}

func TestCLIAdapterParseError(t *testing.T) {
	srv := newSSHTestServer(t, "admin", "pw", map[string]string{
		cmdShowInterfaces: "garbage that is not ios\n",
	})
	a := newTestCLI(t, srv, "admin", "pw")
	ctx := context.Background()
	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer a.Disconnect()

	_, err := a.QueryInterfaces(ctx)
	if KindOf(err) != KindParse {
		t.Errorf("QueryInterfaces() kind = %v, want parse (%v)", KindOf(err), err)
	}
}

func TestNewCLIRejectsUnknownDialect(t *testing.T) {
	_, err := NewCLI(models.Device{Name: "x", Dialect: "junos"}, config.Credentials{}, Options{Logger: zap.NewNop()})
	if err == nil {
		t.Fatal("NewCLI() error = nil, want unsupported dialect")
	}
}

func TestCLIAdapterNoUsername(t *testing.T) {
	a, _ := NewCLI(models.Device{Name: "x", Address: "127.0.0.1", Port: 1}, config.Credentials{}, Options{Logger: zap.NewNop()})
	if err := a.Connect(context.Background()); KindOf(err) != KindAuth {
		t.Errorf("Connect() kind = %v, want auth", KindOf(err))
	}
}
