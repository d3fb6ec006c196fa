package nacos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServerConfigs(t *testing.T) {
	cfgs, err := ParseServerConfigs("10.0.0.1:8848, 10.0.0.2:9848")
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, "10.0.0.1", cfgs[0].IpAddr)
	assert.Equal(t, uint64(9848), cfgs[1].Port)
}

func TestParseServerConfigs_Invalid(t *testing.T) {
	for _, addrs := range []string{"", "no-port", "host:abc"} {
		_, err := ParseServerConfigs(addrs)
		assert.Error(t, err, addrs)
	}
}
