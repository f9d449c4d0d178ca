package peer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialer_ReusesConnectionForSameURI(t *testing.T) {
	d := newDialer()
	defer d.close()

	c1, err := d.client("127.0.0.1:7420")
	require.NoError(t, err)
	c2, err := d.client("127.0.0.1:7420")
	require.NoError(t, err)

	assert.Len(t, d.conns, 1)
	assert.NotNil(t, c1)
	assert.NotNil(t, c2)
}

func TestDialer_ForgetDropsCachedConnection(t *testing.T) {
	d := newDialer()
	defer d.close()

	_, err := d.client("127.0.0.1:7420")
	require.NoError(t, err)
	require.Len(t, d.conns, 1)

	d.forget("127.0.0.1:7420")
	assert.Len(t, d.conns, 0)
}
