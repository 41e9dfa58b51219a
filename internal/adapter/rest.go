package adapter

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/switchyard/internal/config"
	"github.com/HerbHall/switchyard/internal/version"
	"github.com/HerbHall/switchyard/pkg/models"
)

func init() {
	Register(models.AdapterREST, NewREST)
}

// restDialect is the vendor-specific part of a REST adapter.
type restDialect interface {
	login(ctx context.Context, c *restClient) error
	logout(ctx context.Context, c *restClient) error
	ports(ctx context.Context, c *restClient, at time.Time) ([]models.Port, bool, error)
	hosts(ctx context.Context, c *restClient, at time.Time) ([]models.Host, error)
	healthPath() string
}

// restClient performs JSON requests against one device.
type restClient struct {
	device  string
	baseURL string
	http    *http.Client
	creds   config.Credentials
	header  http.Header
	basic   bool
}

// StatusError is a non-2xx response from a device API.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Code)
}

func (c *restClient) do(ctx context.Context, op, method, path string, body, out any) (*http.Response, error) {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, newError(KindConnectivity, c.device, op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.basic {
		req.SetBasicAuth(c.creds.Username, c.creds.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, newError(KindConnectivity, c.device, op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resp, newError(KindAuth, c.device, op, &StatusError{method, path, resp.StatusCode})
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp, newError(KindConnectivity, c.device, op, &StatusError{method, path, resp.StatusCode})
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(out); err != nil {
		return resp, newError(KindParse, c.device, op, fmt.Errorf("decode %s: %w", path, err))
	}
	return resp, nil
}

func (c *restClient) getJSON(ctx context.Context, op, path string, out any) error {
	_, err := c.do(ctx, op, http.MethodGet, path, nil, out)
	return err
}

// RESTAdapter polls a device through its HTTP JSON management API.
type RESTAdapter struct {
	dev       models.Device
	logger    *zap.Logger
	client    *restClient
	dialect   restDialect
	now       func() time.Time
	connected bool
	ports     portCache
	traffic   trafficTracker
}

// NewREST builds a REST adapter for the huawei or unifi dialect.
func NewREST(dev models.Device, creds config.Credentials, opts Options) (Adapter, error) {
	var d restDialect
	basic := false
	switch dev.Dialect {
	case "huawei":
		d = huaweiDialect{}
		basic = true
	case "unifi":
		site := dev.Site
		if site == "" {
			site = "default"
		}
		d = &unifiDialect{site: site}
	default:
		return nil, fmt.Errorf("rest: unsupported dialect %q", dev.Dialect)
	}

	timeout := dev.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("rest: cookie jar: %w", err)
	}

	return &RESTAdapter{
		dev:    dev,
		logger: opts.Logger,
		client: &restClient{
			device:  dev.Name,
			baseURL: baseURL(dev),
			creds:   creds,
			header:  make(http.Header),
			basic:   basic,
			http: &http.Client{
				Timeout: timeout,
				Jar:     jar,
				Transport: &http.Transport{
					TLSClientConfig: &tls.Config{
						InsecureSkipVerify: dev.Insecure, //nolint:gosec // G402: appliances ship self-signed certificates
					},
				},
			},
		},
		dialect: d,
		now:     time.Now,
	}, nil
}

// baseURL builds the API root. Addresses without a scheme use https, or
// http when the dialect is huawei and no port is given.
func baseURL(dev models.Device) string {
	addr := strings.TrimRight(dev.Address, "/")
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	scheme := "https"
	if dev.Dialect == "huawei" {
		scheme = "http"
	}
	if dev.Port != 0 {
		addr += ":" + strconv.Itoa(dev.Port)
	}
	return scheme + "://" + addr
}

// Connect authenticates with the device API.
func (a *RESTAdapter) Connect(ctx context.Context) error {
	if a.connected {
		return nil
	}
	if a.client.creds.Username == "" {
		return newError(KindAuth, a.dev.Name, "connect", errors.New("no username for credential ref"))
	}
	if err := a.dialect.login(ctx, a.client); err != nil {
		return err
	}
	a.connected = true
	a.logger.Debug("rest session established", zap.String("base_url", a.client.baseURL))
	return nil
}

// Disconnect logs out where the dialect has a session, then drops local state.
func (a *RESTAdapter) Disconnect() error {
	if !a.connected {
		return nil
	}
	a.connected = false
	ctx, cancel := context.WithTimeout(context.Background(), a.client.http.Timeout)
	defer cancel()
	err := a.dialect.logout(ctx, a.client)
	a.client.http.CloseIdleConnections()
	return err
}

func (a *RESTAdapter) readPorts(ctx context.Context) (InterfaceResult, time.Time, error) {
	at := a.now()
	ports, partial, err := a.dialect.ports(ctx, a.client, at)
	if err != nil {
		a.dropOnAuth(err)
		return InterfaceResult{}, at, err
	}
	return InterfaceResult{Ports: ports, Partial: partial}, at, nil
}

// dropOnAuth forgets the session when the device rejected it, so the next
// cycle logs in again.
func (a *RESTAdapter) dropOnAuth(err error) {
	if KindOf(err) == KindAuth {
		a.connected = false
	}
}

func (a *RESTAdapter) QueryInterfaces(ctx context.Context) (InterfaceResult, error) {
	res, at, err := a.readPorts(ctx)
	if err != nil {
		return InterfaceResult{}, err
	}
	a.ports.store(res.Ports, at)
	return res, nil
}

func (a *RESTAdapter) QueryHosts(ctx context.Context) ([]models.Host, error) {
	hosts, err := a.dialect.hosts(ctx, a.client, a.now())
	if err != nil {
		a.dropOnAuth(err)
		return nil, err
	}
	return hosts, nil
}

func (a *RESTAdapter) QueryTraffic(ctx context.Context) (*models.TrafficSample, error) {
	ports, at, ok := a.ports.take()
	if !ok {
		res, readAt, err := a.readPorts(ctx)
		if err != nil {
			return nil, err
		}
		ports, at = res.Ports, readAt
	}
	return a.traffic.observe(ports, at), nil
}

// HealthCheck requests the dialect's system endpoint. Any HTTP answer,
// including 401, proves the API is reachable.
func (a *RESTAdapter) HealthCheck(ctx context.Context) error {
	err := a.client.getJSON(ctx, "health_check", a.dialect.healthPath(), nil)
	if err == nil || KindOf(err) == KindAuth {
		return nil
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code < 500 {
		return nil
	}
	return err
}

func (a *RESTAdapter) DataSource() models.DataSource { return models.SourceRESTAPI }
func (a *RESTAdapter) Family() models.AdapterType    { return models.AdapterREST }

var _ Adapter = (*RESTAdapter)(nil)
