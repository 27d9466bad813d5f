package redis

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pior/redis/internal/testutils"
	"github.com/pior/redis/resp"
)

// selfSignedCert returns a certificate valid for 127.0.0.1 and redis.test,
// and a pool trusting it.
func selfSignedCert(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "redis.test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"redis.test"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	roots := x509.NewCertPool()
	roots.AddCert(leaf)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, roots
}

// tlsServer serves the fake server over TLS and records the server names
// sent by clients.
type tlsServer struct {
	*testutils.Server

	mu          sync.Mutex
	serverNames []string
}

func newTLSServer(t *testing.T) (*tlsServer, *x509.CertPool) {
	t.Helper()

	cert, roots := selfSignedCert(t)
	srv := &tlsServer{}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			srv.mu.Lock()
			srv.serverNames = append(srv.serverNames, hello.ServerName)
			srv.mu.Unlock()
			return &cert, nil
		},
	})
	require.NoError(t, err)

	srv.Server = testutils.NewServerOn(t, ln)
	return srv, roots
}

func (s *tlsServer) ServerNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.serverNames...)
}

func TestClient_TLS(t *testing.T) {
	srv, roots := newTLSServer(t)
	ctx := context.Background()

	// no ServerName anywhere: the host of Address is verified
	client := newTestClient(t, srv.Addr(), func(c *Config) {
		c.TLS = &tls.Config{RootCAs: roots}
		c.BufferSize = 64
	})

	value := make([]byte, 300)
	for i := range value {
		value[i] = byte('a' + i%26)
	}
	_, err := client.Set(ctx, "k", value, SetOptions{})
	require.NoError(t, err)

	got, err := client.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, value, got.Value())

	tx := client.CreateTransaction()
	defer tx.Close()
	n, err := Queue(tx, NewRPushCommand("list", []byte("x")))
	require.NoError(t, err)
	committed, err := tx.Complete(ctx)
	require.NoError(t, err)
	require.True(t, committed)
	length, err := n.Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), length)

	require.Equal(t, uint64(1), client.PoolStats().CreatedConns)
	// IP addresses are not sent as SNI
	require.Equal(t, []string{""}, srv.ServerNames())
}

func TestClient_TLSServerName(t *testing.T) {
	srv, roots := newTLSServer(t)

	client := newTestClient(t, srv.Addr(), func(c *Config) {
		c.TLS = &tls.Config{RootCAs: roots}
		c.ServerName = "redis.test"
	})
	require.NoError(t, client.Ping(context.Background()))
	require.Equal(t, []string{"redis.test"}, srv.ServerNames())

	// the TLS config ServerName wins
	other := newTestClient(t, srv.Addr(), func(c *Config) {
		c.TLS = &tls.Config{RootCAs: roots, ServerName: "127.0.0.1"}
		c.ServerName = "redis.test"
	})
	require.NoError(t, other.Ping(context.Background()))
	require.Equal(t, []string{"redis.test", ""}, srv.ServerNames())
}

func TestClient_TLSHandshakeError(t *testing.T) {
	srv, _ := newTLSServer(t)

	client := newTestClient(t, srv.Addr(), func(c *Config) {
		c.TLS = &tls.Config{} // server certificate is not trusted
	})

	err := client.Ping(context.Background())
	var cerr *resp.ConnectionError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "handshake", cerr.Op)
	require.Zero(t, client.PoolStats().TotalConns)
}

func TestServerName(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{Address: "cache.internal:6379"}, "cache.internal"},
		{Config{Address: "cache.internal:6379", ServerName: "redis.test"}, "redis.test"},
		{Config{Address: "[::1]:6379"}, "::1"},
		{Config{Address: "no-port"}, "no-port"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.cfg.serverName(), tt.cfg.Address)
	}
}

func TestClient_UnixSocket(t *testing.T) {
	// socket paths are limited to about a hundred bytes
	dir, err := os.MkdirTemp("", "redis")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "redis.sock")

	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	srv := testutils.NewServerOn(t, ln)

	client := newTestClient(t, path, func(c *Config) { c.Network = "unix" })
	ctx := context.Background()

	_, err = client.Set(ctx, "k", []byte("over unix"), SetOptions{})
	require.NoError(t, err)
	got, err := client.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "over unix", string(got.Value()))

	require.Equal(t, 1, srv.Connections())
	require.Equal(t, "unix", client.config.Network)
}

func TestClient_ForceStreamPipe(t *testing.T) {
	srv, client := newServerAndClient(t, func(c *Config) {
		c.ForceStreamPipe = true
		c.BufferSize = 64
	})
	publisher := newTestClient(t, srv.Addr())
	ctx := context.Background()

	value := make([]byte, 500)
	for i := range value {
		value[i] = byte('0' + i%10)
	}
	_, err := client.Set(ctx, "k", value, SetOptions{Expiration: time.Minute})
	require.NoError(t, err)
	got, err := client.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, value, got.Value())

	replies, err := client.ExecuteBatch(ctx, [][]resp.Value{
		NewPingCommand().Args,
		NewGetCommand("k").Args,
	})
	require.NoError(t, err)
	require.Equal(t, "PONG", replies[0].Text())
	require.Equal(t, value, replies[1].Bytes())

	sub, err := client.Subscribe(ctx, "news")
	require.NoError(t, err)
	defer sub.Close()
	_, err = publisher.Publish(ctx, "news", []byte("streamed"))
	require.NoError(t, err)
	payload, err := sub.Message(ctx)
	require.NoError(t, err)
	require.Equal(t, "streamed", string(payload))
}
