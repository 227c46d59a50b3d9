package core

import (
	"io"
	"net"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func benchmarkChannelBroadcast(b *testing.B, recipients int) {
	h := NewHub(Options{SendQueueSize: 1024})
	defer h.Shutdown()

	logger := zerolog.Nop()
	for i := range recipients {
		serverSide, clientSide := net.Pipe()
		go func() { _, _ = io.Copy(io.Discard, clientSide) }()

		c := newConn(serverSide, 1024, 0, &logger)
		if err := h.register(c); err != nil {
			b.Fatalf("register: %v", err)
		}
		h.setIdentity(c, "c"+string(rune('a'+i%26)))
		if err := h.JoinChannel(c, "bench"); err != nil {
			b.Fatalf("join: %v", err)
		}
	}

	msg := proto.Relay{Channel: "bench", From: "sender", Text: "payload"}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		h.Broadcast("bench", msg, nil)
	}
}

func BenchmarkChannelBroadcast_10(b *testing.B)  { benchmarkChannelBroadcast(b, 10) }
func BenchmarkChannelBroadcast_100(b *testing.B) { benchmarkChannelBroadcast(b, 100) }
func BenchmarkChannelBroadcast_500(b *testing.B) { benchmarkChannelBroadcast(b, 500) }
