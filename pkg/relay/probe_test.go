package relay

import (
	"net"
	"testing"
	"time"
)

func TestProbeSOCKSReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	if !ProbeSOCKS("127.0.0.1", port, time.Second) {
		t.Error("expected probe to succeed against live listener")
	}
}

func TestProbeSOCKSUnreachable(t *testing.T) {
	// Grab a free port, then close it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	if ProbeSOCKS("127.0.0.1", port, 500*time.Millisecond) {
		t.Error("expected probe to fail against closed port")
	}
}
