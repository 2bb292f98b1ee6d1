package server

import (
	"context"
	"testing"
	"time"

	"github.com/jroosing/hydradns/internal/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeZoneTransferer is a minimal resolvers.ZoneTransferer double.
type fakeZoneTransferer struct {
	frames [][]byte
	ok     bool
}

func (f *fakeZoneTransferer) BuildTransfer(req dns.Packet) ([][]byte, bool) {
	return f.frames, f.ok
}

func TestQueryHandler_HandleAXFR_TCP(t *testing.T) {
	queryBytes := buildTestQuery(t, "example.com", dns.TypeAXFR)
	xfer := &fakeZoneTransferer{frames: [][]byte{[]byte("soa"), []byte("a-record"), []byte("soa")}, ok: true}
	handler := &QueryHandler{
		Resolver:     &mockResolver{},
		Timeout:      5 * time.Second,
		ZoneTransfer: xfer,
	}

	result := handler.Handle(context.Background(), "tcp", "192.168.1.1:12345", queryBytes)

	require.True(t, result.ParsedOK)
	assert.Equal(t, "axfr", result.Source)
	assert.Equal(t, xfer.frames, result.TransferBytes)
	assert.Empty(t, result.ResponseBytes)
}

func TestQueryHandler_HandleAXFR_RefusedOverUDP(t *testing.T) {
	queryBytes := buildTestQuery(t, "example.com", dns.TypeAXFR)
	xfer := &fakeZoneTransferer{frames: [][]byte{[]byte("soa")}, ok: true}
	handler := &QueryHandler{
		Resolver:     &mockResolver{},
		Timeout:      5 * time.Second,
		ZoneTransfer: xfer,
	}

	result := handler.Handle(context.Background(), "udp", "192.168.1.1:12345", queryBytes)

	require.True(t, result.ParsedOK)
	assert.Equal(t, "refused", result.Source)
	assert.Empty(t, result.TransferBytes)
	assert.NotEmpty(t, result.ResponseBytes)
}

func TestQueryHandler_HandleAXFR_NoZoneResolverConfigured(t *testing.T) {
	queryBytes := buildTestQuery(t, "example.com", dns.TypeAXFR)
	handler := &QueryHandler{
		Resolver: &mockResolver{},
		Timeout:  5 * time.Second,
	}

	result := handler.Handle(context.Background(), "tcp", "192.168.1.1:12345", queryBytes)

	require.True(t, result.ParsedOK)
	assert.Equal(t, "refused", result.Source)
	assert.Empty(t, result.TransferBytes)
}

func TestQueryHandler_HandleIXFR_UnknownZoneRefused(t *testing.T) {
	queryBytes := buildTestQuery(t, "example.com", dns.TypeIXFR)
	xfer := &fakeZoneTransferer{ok: false}
	handler := &QueryHandler{
		Resolver:     &mockResolver{},
		Timeout:      5 * time.Second,
		ZoneTransfer: xfer,
	}

	result := handler.Handle(context.Background(), "dot", "192.168.1.1:12345", queryBytes)

	require.True(t, result.ParsedOK)
	assert.Equal(t, "refused", result.Source)
}
