package serve

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/chirino/clinical-history/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSinglePortHTTP_PlainAndTLS(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a listener")
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS != nil {
			_, _ = io.WriteString(w, "tls")
			return
		}
		_, _ = io.WriteString(w, "plain")
	})
	running, err := StartSinglePortHTTP(context.Background(), config.ListenerConfig{
		EnablePlainText: true,
		EnableTLS:       true,
	}, handler)
	require.NoError(t, err)
	t.Cleanup(func() { _ = running.Close(context.Background()) })
	require.NotZero(t, running.Port)

	get := func(client *http.Client, url string) string {
		t.Helper()
		resp, err := client.Get(url)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	plain := &http.Client{Timeout: 5 * time.Second}
	assert.Equal(t, "plain", get(plain, fmt.Sprintf("http://127.0.0.1:%d/", running.Port)))

	secure := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
	}
	assert.Equal(t, "tls", get(secure, fmt.Sprintf("https://127.0.0.1:%d/", running.Port)))

	require.NoError(t, running.Close(context.Background()))
	require.NoError(t, running.Close(context.Background()))
}

func TestStartSinglePortHTTP_RequiresAMode(t *testing.T) {
	_, err := StartSinglePortHTTP(context.Background(), config.ListenerConfig{}, http.NotFoundHandler())
	require.Error(t, err)
}

func TestGenerateSelfSignedCertificate(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cert, err := generateSelfSignedCertificate(now)
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	assert.Contains(t, cert.Leaf.DNSNames, "localhost")
	assert.True(t, cert.Leaf.NotAfter.Equal(now.Add(selfSignedValidity)))
	require.NoError(t, cert.Leaf.VerifyHostname("127.0.0.1"))
}

func TestLoadServerCertificate_MissingFiles(t *testing.T) {
	_, err := loadServerCertificate("/does/not/exist.pem", "/does/not/exist.key")
	require.Error(t, err)
}
