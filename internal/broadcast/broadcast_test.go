package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spyoptions/internal/contracts"
)

func TestRingBufferWrapsAndPreservesOrder(t *testing.T) {
	rb := NewRingBuffer(3)
	rb.Add(contracts.Anomaly{TsMS: 1})
	rb.Add(contracts.Anomaly{TsMS: 2})
	rb.Add(contracts.Anomaly{TsMS: 3})
	rb.Add(contracts.Anomaly{TsMS: 4}) // overwrites TsMS:1

	got := rb.GetAll()
	require.Len(t, got, 3)
	assert.Equal(t, []int64{2, 3, 4}, []int64{got[0].TsMS, got[1].TsMS, got[2].TsMS})
}

func TestRingBufferEmptyReturnsNil(t *testing.T) {
	rb := NewRingBuffer(10)
	assert.Nil(t, rb.GetAll())
}

func TestMintAndVerifyToken(t *testing.T) {
	tok, err := MintToken("sekrit", time.Hour)
	require.NoError(t, err)
	require.NoError(t, VerifyToken(tok, "sekrit"))
	assert.Error(t, VerifyToken(tok, "wrong-secret"))
}

func TestExpiredTokenFailsVerification(t *testing.T) {
	tok, err := MintToken("sekrit", -time.Minute)
	require.NoError(t, err)
	assert.Error(t, VerifyToken(tok, "sekrit"))
}

func TestHubSendDropsWhenQueueFull(t *testing.T) {
	h := NewHub(nil)
	// Fill the broadcast channel buffer to force a drop without running Run().
	for i := 0; i < 256; i++ {
		assert.True(t, h.Send("anomaly", i))
	}
	assert.False(t, h.Send("anomaly", "overflow"))
}
