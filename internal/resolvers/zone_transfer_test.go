package resolvers

import (
	"testing"

	"github.com/jroosing/hydradns/internal/dns"
	"github.com/jroosing/hydradns/internal/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transferZone(t *testing.T) *zone.Zone {
	t.Helper()
	z, err := zone.ParseText(`
$ORIGIN example.com.
$TTL 3600
@   IN SOA ns.example.com. host.example.com. 5 3600 600 86400 300
@   IN NS  ns.example.com.
www IN A   192.0.2.1
mail IN A  192.0.2.2
`)
	require.NoError(t, err)
	return z
}

func axfrRequest(qname string, qtype dns.RecordType) dns.Packet {
	return dns.Packet{
		Header:    dns.Header{ID: 99, Flags: dns.RDFlag},
		Questions: []dns.Question{{Name: qname, Type: uint16(qtype), Class: uint16(dns.ClassIN)}},
	}
}

func TestBuildTransferAXFR(t *testing.T) {
	r := NewZoneResolver([]*zone.Zone{transferZone(t)})

	frames, ok := r.BuildTransfer(axfrRequest("example.com", dns.TypeAXFR))
	require.True(t, ok)
	// SOA, NS, www A, mail A, repeat SOA.
	require.Len(t, frames, 5)

	first, err := dns.ParsePacket(frames[0])
	require.NoError(t, err)
	require.Len(t, first.Answers, 1)
	assert.Equal(t, dns.TypeSOA, first.Answers[0].Type())

	last, err := dns.ParsePacket(frames[len(frames)-1])
	require.NoError(t, err)
	require.Len(t, last.Answers, 1)
	assert.Equal(t, dns.TypeSOA, last.Answers[0].Type())

	for _, f := range frames {
		pkt, err := dns.ParsePacket(f)
		require.NoError(t, err)
		assert.True(t, pkt.Header.Flags&dns.QRFlag != 0)
		assert.True(t, pkt.Header.Flags&dns.AAFlag != 0)
	}
}

func TestBuildTransferIXFRFallsBackToAXFR(t *testing.T) {
	r := NewZoneResolver([]*zone.Zone{transferZone(t)})

	axfrFrames, ok := r.BuildTransfer(axfrRequest("example.com", dns.TypeAXFR))
	require.True(t, ok)
	ixfrFrames, ok := r.BuildTransfer(axfrRequest("example.com", dns.TypeIXFR))
	require.True(t, ok)

	assert.Equal(t, len(axfrFrames), len(ixfrFrames))
}

func TestBuildTransferUnknownZone(t *testing.T) {
	r := NewZoneResolver([]*zone.Zone{transferZone(t)})

	_, ok := r.BuildTransfer(axfrRequest("nope.invalid", dns.TypeAXFR))
	assert.False(t, ok)
}

func TestBuildTransferNoQuestion(t *testing.T) {
	r := NewZoneResolver([]*zone.Zone{transferZone(t)})

	_, ok := r.BuildTransfer(dns.Packet{Header: dns.Header{ID: 1}})
	assert.False(t, ok)
}
