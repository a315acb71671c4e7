package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig(t *testing.T) {
	assert.True(t, Packet{HasPTS: false}.Config())
	assert.False(t, Packet{HasPTS: true, PTS: 1}.Config())
}

func TestClone_Independence(t *testing.T) {
	original := Packet{Data: []byte{1, 2, 3}, HasPTS: true, PTS: 42}
	clone := original.Clone()

	clone.Data[0] = 0xFF
	assert.Equal(t, byte(1), original.Data[0], "mutating the clone must not affect the original")
	assert.Equal(t, int64(42), clone.PTS)
}
