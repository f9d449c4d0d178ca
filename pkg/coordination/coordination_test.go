package coordination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestAcquire_GrantsWhenUnheld(t *testing.T) {
	c := newTestCoordinator(t)

	ok, err := c.Acquire("g", "peer-a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	lease, err := c.Current("g")
	require.NoError(t, err)
	assert.Equal(t, "peer-a", lease.HolderURI)
	assert.False(t, lease.Tyrant)
}

func TestAcquire_ExclusiveWhileLive(t *testing.T) {
	c := newTestCoordinator(t)

	ok, err := c.Acquire("g", "peer-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.Acquire("g", "peer-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a live lease must not be granted to a second holder")
}

func TestAcquire_GrantsAfterExpiry(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Acquire("g", "peer-a", -time.Second) // already expired
	require.NoError(t, err)

	ok, err := c.Acquire("g", "peer-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "an expired lease must be re-grantable to any peer")
}

func TestAcquire_IdempotentForSameHolder(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Acquire("g", "peer-a", time.Minute)
	require.NoError(t, err)

	ok, err := c.Acquire("g", "peer-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRenew_FailsForNonHolder(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Acquire("g", "peer-a", time.Minute)
	require.NoError(t, err)

	ok, err := c.Renew("g", "peer-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRenew_ExtendsForHolder(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Acquire("g", "peer-a", time.Second)
	require.NoError(t, err)

	before, err := c.Current("g")
	require.NoError(t, err)

	ok, err := c.Renew("g", "peer-a", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	after, err := c.Current("g")
	require.NoError(t, err)
	assert.True(t, after.ExpiresAt.After(before.ExpiresAt))
}

func TestSeize_OverridesLiveLease(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Acquire("g", "peer-a", time.Hour)
	require.NoError(t, err)

	err = c.Seize("g", "tyrant-peer", time.Minute)
	require.NoError(t, err)

	lease, err := c.Current("g")
	require.NoError(t, err)
	assert.Equal(t, "tyrant-peer", lease.HolderURI)
	assert.True(t, lease.Tyrant)

	// The deposed holder can no longer renew.
	ok, err := c.Renew("g", "peer-a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRelease_OnlyForHolder(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Acquire("g", "peer-a", time.Hour)
	require.NoError(t, err)

	require.NoError(t, c.Release("g", "peer-b")) // no-op, not the holder
	lease, err := c.Current("g")
	require.NoError(t, err)
	require.NotNil(t, lease)

	require.NoError(t, c.Release("g", "peer-a"))
	lease, err = c.Current("g")
	require.NoError(t, err)
	assert.Nil(t, lease)
}

func TestDiscoveryTags(t *testing.T) {
	c := newTestCoordinator(t)

	require.NoError(t, c.RegisterDiscovery("ci-fleet", "dcc:ci-fleet:10.0.1.4:7420"))
	require.NoError(t, c.RegisterDiscovery("ci-fleet", "dcc:ci-fleet:10.0.1.5:7420"))
	require.NoError(t, c.RegisterDiscovery("other-group", "dcc:other-group:10.0.1.6:7420"))

	tags, err := c.ListDiscoveryTags("ci-fleet")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"dcc:ci-fleet:10.0.1.4:7420",
		"dcc:ci-fleet:10.0.1.5:7420",
	}, tags)
}
