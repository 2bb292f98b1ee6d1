package resolvers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveUpstreamList_PerClientWins(t *testing.T) {
	fr := NewForwardingResolver([]string{"1.1.1.1"}, 1, 100, false, time.Second, time.Second, 1)
	defer fr.Close()
	fr.SetPerClientUpstreams(map[string][]string{"10.0.0.5": {"9.9.9.9"}})
	fr.SetConditionalForwards([]ConditionalForwardRule{{Pattern: "corp.internal", Servers: []string{"10.0.0.1"}}})

	ctx := WithClientIP(context.Background(), "10.0.0.5")
	list := fr.resolveUpstreamList(ctx, "corp.internal")
	assert.Equal(t, []string{"9.9.9.9"}, list)
}

func TestResolveUpstreamList_ConditionalForwardLongestSuffix(t *testing.T) {
	fr := NewForwardingResolver([]string{"1.1.1.1"}, 1, 100, false, time.Second, time.Second, 1)
	defer fr.Close()
	fr.SetConditionalForwards([]ConditionalForwardRule{
		{Pattern: "internal", Priority: 0, Servers: []string{"10.0.0.1"}},
		{Pattern: "*.corp.internal", Priority: 0, Servers: []string{"10.0.0.2"}},
	})

	list := fr.resolveUpstreamList(context.Background(), "host.corp.internal")
	assert.Equal(t, []string{"10.0.0.2"}, list)
}

func TestResolveUpstreamList_ConditionalForwardPriorityTiebreak(t *testing.T) {
	fr := NewForwardingResolver([]string{"1.1.1.1"}, 1, 100, false, time.Second, time.Second, 1)
	defer fr.Close()
	fr.SetConditionalForwards([]ConditionalForwardRule{
		{Pattern: "corp.internal", Priority: 1, Servers: []string{"10.0.0.1"}},
		{Pattern: "corp.internal", Priority: 5, Servers: []string{"10.0.0.2"}},
	})

	list := fr.resolveUpstreamList(context.Background(), "corp.internal")
	assert.Equal(t, []string{"10.0.0.2"}, list)
}

func TestResolveUpstreamList_FallsBackToGlobal(t *testing.T) {
	fr := NewForwardingResolver([]string{"1.1.1.1", "8.8.8.8"}, 1, 100, false, time.Second, time.Second, 1)
	defer fr.Close()

	list := fr.resolveUpstreamList(context.Background(), "example.com")
	assert.Equal(t, fr.upstreams, list)
}
