package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTCPListenerAcceptRoundTrip(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0")
	assert.NoError(t, err)
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s, err := ln.Accept()
		assert.NoError(t, err)
		buf := make([]byte, 5)
		n, err := s.Read(buf)
		assert.NoError(t, err)
		assert.Equal(t, "hello", string(buf[:n]))
		s.Close()
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	assert.NoError(t, err)
	_, err = conn.Write([]byte("hello"))
	assert.NoError(t, err)
	conn.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("accept never completed")
	}
}
