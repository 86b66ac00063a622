package serve

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/clinical-history/internal/config"
	"github.com/soheilhy/cmux"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	selfSignedValidity       = 365 * 24 * time.Hour
)

// RunningServers is a listener serving the API on one port.
type RunningServers struct {
	Addr  net.Addr
	Port  int
	Close func(ctx context.Context) error
}

// modeServer is one protocol mode (plaintext or tls) bound to its cmux matcher.
type modeServer struct {
	mode string
	lis  net.Listener
	srv  *http.Server
}

// StartSinglePortHTTP serves handler on cfg.Port. Plaintext (HTTP/1.1 and h2c)
// and TLS may both be enabled; connections are split by their first bytes.
func StartSinglePortHTTP(
	_ context.Context,
	cfg config.ListenerConfig,
	handler http.Handler,
) (*RunningServers, error) {
	if !cfg.EnablePlainText && !cfg.EnableTLS {
		return nil, fmt.Errorf("listener requires plaintext and/or tls enabled")
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = defaultReadHeaderTimeout
	}

	var tlsCfg *tls.Config
	if cfg.EnableTLS {
		cert, err := loadServerCertificate(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, err
		}
		tlsCfg = &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2", "http/1.1"},
			MinVersion:   tls.VersionTLS12,
		}
	}

	baseLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}
	muxer := cmux.New(baseLis)

	// TLS must be matched before the catch-all plaintext matcher.
	var servers []modeServer
	if tlsCfg != nil {
		servers = append(servers, modeServer{
			mode: "tls",
			lis:  tls.NewListener(muxer.Match(cmux.TLS()), tlsCfg),
			srv:  &http.Server{Handler: handler, ReadHeaderTimeout: cfg.ReadHeaderTimeout},
		})
	}
	if cfg.EnablePlainText {
		servers = append(servers, modeServer{
			mode: "plaintext",
			lis:  muxer.Match(cmux.Any()),
			srv: &http.Server{
				Handler:           h2c.NewHandler(handler, &http2.Server{}),
				ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			},
		})
	}

	for _, s := range servers {
		go func(s modeServer) {
			if err := s.srv.Serve(s.lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP server failed", "mode", s.mode, "err", err)
			}
		}(s)
	}
	go func() {
		if err := muxer.Serve(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Error("Connection mux failed", "err", err)
		}
	}()

	var closeOnce sync.Once
	var closeErr error
	closeFn := func(ctx context.Context) error {
		closeOnce.Do(func() {
			for _, s := range servers {
				if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
					closeErr = errors.Join(closeErr, fmt.Errorf("shutdown %s server: %w", s.mode, err))
				}
			}
			_ = baseLis.Close()
		})
		return closeErr
	}

	running := &RunningServers{Addr: baseLis.Addr(), Close: closeFn}
	if tcpAddr, ok := baseLis.Addr().(*net.TCPAddr); ok {
		running.Port = tcpAddr.Port
	}
	return running, nil
}

func loadServerCertificate(certFile, keyFile string) (tls.Certificate, error) {
	certFile, keyFile = strings.TrimSpace(certFile), strings.TrimSpace(keyFile)
	if certFile == "" || keyFile == "" {
		log.Warn("No TLS certificate configured, using a self-signed localhost certificate")
		return generateSelfSignedCertificate(time.Now())
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load tls certificate: %w", err)
	}
	return cert, nil
}

func generateSelfSignedCertificate(now time.Time) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate tls key failed: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate tls serial failed: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost", Organization: []string{"clinical-history"}},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.Add(selfSignedValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate tls certificate failed: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse tls certificate failed: %w", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, nil
}
