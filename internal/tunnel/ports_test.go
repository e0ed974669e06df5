package tunnel

import (
	"fmt"
	"net"
	"testing"

	"github.com/grovetools/weave/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// occupyPorts binds the given port range so the server under test sees them
// in use. Ports already held by other processes count as occupied too.
func occupyPorts(t *testing.T, from, to int) []net.Listener {
	t.Helper()
	var listeners []net.Listener
	for port := from; port <= to; port++ {
		l, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
		if err == nil {
			listeners = append(listeners, l)
		}
	}
	t.Cleanup(func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	})
	return listeners
}

func TestStartFailsWhenAllPortsInUse(t *testing.T) {
	occupyPorts(t, PortRangeStart, PortRangeEnd)

	srv := NewServer(serverIdentity(), newFakeBackend(), testLogger())
	err := srv.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodePortRangeExhausted), "got %v", err)
}

func TestStartProbesToLastPort(t *testing.T) {
	occupyPorts(t, PortRangeStart, PortRangeEnd-1)

	srv := NewServer(serverIdentity(), newFakeBackend(), testLogger())
	require.NoError(t, srv.Start())
	defer srv.Shutdown()
	assert.Equal(t, PortRangeEnd, srv.Port())
}
