package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	Hostname string `json:"hostname"`
	Verdict  string `json:"verdict"`
}

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	log.SetOutput(io.Discard)

	return log
}

type capture struct {
	mu       sync.Mutex
	bodies   [][]byte
	encoding string
	ctype    string
	agent    string
	custom   string
}

func (c *capture) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.encoding = r.Header.Get("Content-Encoding")
		c.ctype = r.Header.Get("Content-Type")
		c.agent = r.Header.Get("User-Agent")
		c.custom = r.Header.Get("X-Fleet")
		c.mu.Unlock()

		w.WriteHeader(status)
	}
}

func TestExporter_ExportItems(t *testing.T) {
	c := &capture{}
	server := httptest.NewServer(c.handler(http.StatusOK))
	defer server.Close()

	exporter, err := NewExporter[testRecord](testLog(), Config{
		Enabled:     true,
		Address:     server.URL,
		Compression: CompressionZstd,
		Headers:     map[string]string{"X-Fleet": "rack-4"},
	})
	require.NoError(t, err)
	defer exporter.Shutdown(context.Background())

	err = exporter.ExportItems(context.Background(), []*testRecord{
		{Hostname: "node-1", Verdict: "pass"},
		nil,
		{Hostname: "node-2", Verdict: "fail"},
	})
	require.NoError(t, err)

	require.Len(t, c.bodies, 1)
	assert.Equal(t, "application/x-ndjson", c.ctype)
	assert.Equal(t, "zstd", c.encoding)
	assert.Equal(t, "rack-4", c.custom)
	assert.True(t, strings.HasPrefix(c.agent, "upicheck/"))

	decompressed, err := decompress(c.encoding, c.bodies[0])
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(decompressed)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"hostname":"node-1"`)
	assert.Contains(t, lines[1], `"verdict":"fail"`)
}

func TestExporter_ServerError(t *testing.T) {
	c := &capture{}
	server := httptest.NewServer(c.handler(http.StatusInternalServerError))
	defer server.Close()

	exporter, err := NewExporter[testRecord](testLog(), Config{
		Enabled:     true,
		Address:     server.URL,
		Compression: CompressionNone,
	})
	require.NoError(t, err)
	defer exporter.Shutdown(context.Background())

	err = exporter.ExportItems(context.Background(), []*testRecord{{Hostname: "node-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 500")
}

func TestExporter_EmptyBatch(t *testing.T) {
	c := &capture{}
	server := httptest.NewServer(c.handler(http.StatusOK))
	defer server.Close()

	exporter, err := NewExporter[testRecord](testLog(), Config{
		Enabled: true,
		Address: server.URL,
	})
	require.NoError(t, err)
	defer exporter.Shutdown(context.Background())

	require.NoError(t, exporter.ExportItems(context.Background(), nil))
	assert.Empty(t, c.bodies)
}

func TestNewExporter_InvalidConfig(t *testing.T) {
	_, err := NewExporter[testRecord](testLog(), Config{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestPublish_DrainsQueue(t *testing.T) {
	c := &capture{}
	server := httptest.NewServer(c.handler(http.StatusOK))
	defer server.Close()

	err := Publish(context.Background(), testLog(), Config{
		Enabled:     true,
		Address:     server.URL,
		Compression: CompressionGzip,
	}, "test_http", []*testRecord{{Hostname: "node-9", Verdict: "pass"}})
	require.NoError(t, err)

	c.mu.Lock()
	defer c.mu.Unlock()

	require.NotEmpty(t, c.bodies)

	decompressed, err := decompress("gzip", c.bodies[0])
	require.NoError(t, err)
	assert.Contains(t, string(decompressed), `"hostname":"node-9"`)
}
