package reportsrv

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"net/http"
	"time"

	quic "github.com/quic-go/quic-go"
	http3 "github.com/quic-go/quic-go/http3"
)

// HTTP3Server wraps http3.Server lifecycle for the report endpoints.
type HTTP3Server struct {
	pc   net.PacketConn
	srv  *http3.Server
	errC chan error
	addr string
}

// NewHTTP3Server creates a server bound to addr with the given TLS config
// and handler. A nil TLS config gets an ephemeral self-signed certificate,
// which is acceptable for a diagnostics endpoint. TLS 1.3 is enforced as
// QUIC requires.
func NewHTTP3Server(addr string, tlsCfg *tls.Config, h http.Handler) (*HTTP3Server, error) {
	if tlsCfg == nil {
		cert, err := selfSignedCert()
		if err != nil {
			return nil, err
		}
		tlsCfg = &tls.Config{
			MinVersion:   tls.VersionTLS13,
			NextProtos:   []string{"h3"},
			Certificates: []tls.Certificate{cert},
		}
	} else if tlsCfg.MinVersion < tls.VersionTLS13 {
		c := tlsCfg.Clone()
		c.MinVersion = tls.VersionTLS13
		if len(c.NextProtos) == 0 {
			c.NextProtos = []string{"h3"}
		}
		tlsCfg = c
	}

	qc := &quic.Config{MaxIdleTimeout: 30 * time.Second}
	s := &http3.Server{Addr: addr, TLSConfig: tlsCfg, Handler: h, QUICConfig: qc}
	return &HTTP3Server{srv: s, addr: addr, errC: make(chan error, 1)}, nil
}

// Start begins serving HTTP/3. With a ":0" addr the bound port is
// ephemeral; use Addr to learn it.
func (s *HTTP3Server) Start() (string, error) {
	var err error
	s.pc, err = net.ListenPacket("udp", s.addr)
	if err != nil {
		return "", err
	}
	go func() {
		s.errC <- s.srv.Serve(s.pc)
	}()
	return s.pc.LocalAddr().String(), nil
}

// Addr returns the bound UDP address, or the configured one before Start.
func (s *HTTP3Server) Addr() string {
	if s.pc != nil {
		return s.pc.LocalAddr().String()
	}
	return s.addr
}

// Close shuts the server down and releases the packet conn.
func (s *HTTP3Server) Close() error {
	err := s.srv.Close()
	if s.pc != nil {
		_ = s.pc.Close()
	}
	return err
}

// selfSignedCert mints a short-lived certificate for localhost use.
func selfSignedCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "emballoc-monitor"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
