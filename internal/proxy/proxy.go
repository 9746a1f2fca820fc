package proxy

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/dgnsrekt/copilot_capture/internal/types"
	"github.com/elazarl/goproxy"
	"github.com/google/uuid"
)

// Hook is the capture side of the proxy.
type Hook interface {
	AcceptsHost(host string) bool
	Accepts(host, url, path string) bool
	OnRequest(flow *types.Flow) (*types.CapturedRequest, bool)
	OnResponse(flow *types.Flow)
}

// Options configures the interception runtime.
type Options struct {
	// MaxBodyBytes bounds how much of each response body is kept for the
	// hook. Request bodies are always read whole because they are forwarded.
	MaxBodyBytes     int
	CACertFile       string
	CAKeyFile        string
	UpstreamInsecure bool
	Verbose          bool
}

// Server wires a capture Hook into a goproxy MITM proxy.
type Server struct {
	proxy        *goproxy.ProxyHttpServer
	hook         Hook
	mitm         *goproxy.ConnectAction
	caPEM        []byte
	maxBodyBytes int
}

// New builds the proxy. CONNECT tunnels to hosts accepted by the hook are
// decrypted; everything else is tunneled untouched.
func New(hook Hook, opts Options) (*Server, error) {
	s := &Server{
		proxy:        goproxy.NewProxyHttpServer(),
		hook:         hook,
		mitm:         goproxy.MitmConnect,
		caPEM:        goproxy.CA_CERT,
		maxBodyBytes: opts.MaxBodyBytes,
	}

	if opts.CACertFile != "" {
		ca, pemBytes, err := loadCA(opts.CACertFile, opts.CAKeyFile)
		if err != nil {
			return nil, err
		}
		s.mitm = &goproxy.ConnectAction{Action: goproxy.ConnectMitm, TLSConfig: goproxy.TLSConfigFromCA(ca)}
		s.caPEM = pemBytes
		slog.Info("Loaded MITM certificate authority", "cert", opts.CACertFile, "subject", ca.Leaf.Subject.CommonName)
	}

	s.proxy.Verbose = opts.Verbose
	s.proxy.Logger = goproxyLogger{}
	s.proxy.Tr = &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.UpstreamInsecure},
	}

	s.proxy.OnRequest().HandleConnectFunc(s.handleConnect)
	s.proxy.OnRequest().DoFunc(s.handleRequest)
	s.proxy.OnResponse().DoFunc(s.handleResponse)

	return s, nil
}

// Handler returns the proxy as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.proxy
}

// SetControlHandler serves requests addressed to the proxy itself rather
// than proxied through it.
func (s *Server) SetControlHandler(h http.Handler) {
	s.proxy.NonproxyHandler = h
}

// CACertPEM returns the PEM certificate clients must trust.
func (s *Server) CACertPEM() []byte {
	return s.caPEM
}

func (s *Server) handleConnect(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
	if s.hook.AcceptsHost(hostname(host)) {
		slog.Debug("Decrypting tunnel", "host", host)
		return s.mitm, host
	}
	return goproxy.OkConnect, host
}

func (s *Server) handleRequest(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	flow := flowFromRequest(req)
	if !s.hook.Accepts(flow.Host, flow.URL, flow.Path) {
		return req, nil
	}

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			slog.Error("Failed to read request body", "url", flow.URL, "error", err)
			return req, goproxy.NewResponse(req, goproxy.ContentTypeText, http.StatusBadGateway, "copilot capture: failed to read request body")
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
		flow.Body = body
	}

	flow.ID = uuid.NewString()
	if _, ok := s.hook.OnRequest(flow); ok {
		ctx.UserData = flow.ID
	}
	return req, nil
}

func (s *Server) handleResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	flowID, ok := ctx.UserData.(string)
	if !ok || ctx.Req == nil {
		return resp
	}

	flow := flowFromRequest(ctx.Req)
	flow.ID = flowID

	if resp == nil {
		if ctx.Error != nil {
			slog.Warn("Upstream request failed", "flow_id", flowID, "error", ctx.Error)
		}
		s.hook.OnResponse(flow)
		return resp
	}

	headers := resp.Header.Clone()
	status := resp.StatusCode
	finish := func(body []byte, truncated bool) {
		flow.Response = &types.FlowResponse{
			StatusCode: status,
			Headers:    headers,
			Body:       body,
			Truncated:  truncated,
		}
		s.hook.OnResponse(flow)
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		finish(nil, false)
		return resp
	}
	resp.Body = newTeeBody(resp.Body, s.maxBodyBytes, finish)
	return resp
}

func flowFromRequest(req *http.Request) *types.Flow {
	return &types.Flow{
		Method:  req.Method,
		URL:     req.URL.String(),
		Host:    requestHost(req),
		Path:    req.URL.RequestURI(),
		Headers: req.Header.Clone(),
	}
}

func requestHost(req *http.Request) string {
	if h := req.URL.Hostname(); h != "" {
		return h
	}
	return hostname(req.Host)
}

func hostname(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}

func loadCA(certFile, keyFile string) (*tls.Certificate, []byte, error) {
	pemBytes, err := os.ReadFile(certFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read CA certificate: %w", err)
	}
	ca, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load CA key pair: %w", err)
	}
	if ca.Leaf, err = x509.ParseCertificate(ca.Certificate[0]); err != nil {
		return nil, nil, fmt.Errorf("parse CA certificate: %w", err)
	}
	return &ca, pemBytes, nil
}

type goproxyLogger struct{}

func (goproxyLogger) Printf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "goproxy")
}
