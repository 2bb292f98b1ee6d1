package resolvers

import (
	"testing"

	"github.com/jroosing/hydradns/internal/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyUpstream(t *testing.T) {
	tr, target := classifyUpstream("1.1.1.1")
	assert.Equal(t, transportUDP, tr)
	assert.Equal(t, "1.1.1.1", target)

	tr, target = classifyUpstream("tls://1.1.1.1")
	assert.Equal(t, transportDoT, tr)
	assert.Equal(t, "1.1.1.1:853", target)

	tr, target = classifyUpstream("tls://1.1.1.1:8853")
	assert.Equal(t, transportDoT, tr)
	assert.Equal(t, "1.1.1.1:8853", target)

	tr, target = classifyUpstream("https://dns.google/dns-query")
	assert.Equal(t, transportDoH, tr)
	assert.Equal(t, "https://dns.google/dns-query", target)
}

func TestSynthesizeFromJSON(t *testing.T) {
	q := dns.Question{Name: "example.com", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)}
	parsed := dohJSONResponse{Status: 0}
	parsed.Answer = append(parsed.Answer, struct {
		Name string `json:"name"`
		Type uint16 `json:"type"`
		TTL  uint32 `json:"TTL"`
		Data string `json:"data"`
	}{Name: "example.com", Type: uint16(dns.TypeA), TTL: 60, Data: "93.184.216.34"})

	wire, err := synthesizeFromJSON(q, parsed)
	require.NoError(t, err)

	pkt, err := dns.ParsePacket(wire)
	require.NoError(t, err)
	require.Len(t, pkt.Answers, 1)
	assert.Equal(t, dns.TypeA, pkt.Answers[0].Type())
	assert.True(t, pkt.Header.Response())
}
