package app

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker map[int]bool

func (s stubChecker) IsOpen(_ context.Context, port int) bool { return s[port] }

func TestScanKeepsPortOrder(t *testing.T) {
	results := scan(context.Background(), stubChecker{4006: true}, []int{4008, 4006, 4004})

	require.Len(t, results, 3)
	assert.Equal(t, 4008, results[0].port)
	assert.False(t, results[0].open)
	assert.Equal(t, 4006, results[1].port)
	assert.True(t, results[1].open)
}

func TestFormatScan(t *testing.T) {
	out := formatScan([]scanResult{{port: 4004, open: true}, {port: 4005}}).String()
	lines := strings.Split(strings.TrimSpace(out), "\n")

	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "STATUS")
	assert.Contains(t, lines[1], "4004")
	assert.Contains(t, lines[1], "open")
	assert.Contains(t, lines[2], "closed")
}

func TestScanCommand(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

	a := NewApp()
	var out bytes.Buffer
	cmd := a.Command()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"scan", "--prober.candidate-ports", port})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), port)
	assert.Contains(t, out.String(), "open")
}
