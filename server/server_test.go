package server

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	config := DefaultConfig()
	config.FileName = filepath.Join(dir, "words.flraf")
	config.HeaderFileName = filepath.Join(dir, "words.hdr")
	config.WordsFileName = filepath.Join(dir, "words.txt")
	return config
}

func newTestService(t *testing.T, config *Config) (*Service, net.Listener) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	service := NewService(config, log)
	go service.Serve(listener)
	return service, listener
}

func request(t *testing.T, addr, token string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = fmt.Fprintf(conn, "GET /%s HTTP/1.1\r\n", token)
	require.NoError(t, err)

	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(data)
}

func TestServiceRequests(t *testing.T) {
	config := newTestConfig(t)
	require.NoError(t, os.WriteFile(config.WordsFileName, []byte("alpha\nbeta\n"), 0644))

	_, listener := newTestService(t, config)
	addr := listener.Addr().String()

	assert.Contains(t, request(t, addr, "gamma"), "'gamma' was ADDED")
	assert.Contains(t, request(t, addr, "gamma"), "'gamma' was FOUND")
	assert.Contains(t, request(t, addr, "alpha"), "'alpha' was FOUND")
	assert.Contains(t, request(t, addr, "-beta"), "'beta' was REMOVED")
	assert.Contains(t, request(t, addr, "-beta"), "'beta' was NOT FOUND")
	assert.Contains(t, request(t, addr, ""), "Please Enter a Command")
	assert.Contains(t, request(t, addr, "gamma"), "HTTP/1.0 200 OK")
}

func TestServiceCloseAndReopen(t *testing.T) {
	config := newTestConfig(t)
	_, listener := newTestService(t, config)
	addr := listener.Addr().String()

	assert.Contains(t, request(t, addr, "delta"), "ADDED")
	assert.Contains(t, request(t, addr, "?"), "the B-tree was closed")

	// The next request reopens the tree from the header sidecar.
	assert.Contains(t, request(t, addr, "delta"), "'delta' was FOUND")
}

func TestServiceAuth(t *testing.T) {
	config := newTestConfig(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("sesame"), bcrypt.MinCost)
	require.NoError(t, err)
	config.SecretHash = string(hash)

	_, listener := newTestService(t, config)
	addr := listener.Addr().String()

	assert.Contains(t, request(t, addr, "sesame/word"), "'word' was ADDED")
	assert.Contains(t, request(t, addr, "wrong/word"), "access denied")
	assert.Contains(t, request(t, addr, "word"), "access denied")
	assert.Contains(t, request(t, addr, "sesame/word"), "'word' was FOUND")
}

func TestParseRequestLine(t *testing.T) {
	assert.Equal(t, "apple", parseRequestLine("GET /apple HTTP/1.1\r\n"))
	assert.Equal(t, "-pear", parseRequestLine("GET /-pear HTTP/1.0\n"))
	assert.Equal(t, "?", parseRequestLine("GET /? HTTP/1.1"))
	assert.Equal(t, "", parseRequestLine("GET / HTTP/1.1\r\n"))
}
