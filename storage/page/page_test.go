package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumber(t *testing.T) {
	p := NewPagePtr()
	assert.Equal(t, FirstPageID, Number(p))
	SetNumber(p, PageID(42))
	assert.Equal(t, PageID(42), Number(p))
}

func TestFlags(t *testing.T) {
	p := NewPagePtr()
	assert.False(t, IsFree(p))
	SetFlags(p, FlagFree)
	assert.True(t, IsFree(p))
	assert.Equal(t, FlagFree, Flags(p))
	SetFlags(p, 0)
	assert.False(t, IsFree(p))
}

func TestChecksum(t *testing.T) {
	t.Run("when the payload is not damaged", func(t *testing.T) {
		p, err := TestingNewRandomPage()
		assert.Nil(t, err)
		UpdateChecksum(p)
		assert.True(t, VerifyChecksum(p))
	})
	t.Run("when the payload is damaged", func(t *testing.T) {
		p, err := TestingNewRandomPage()
		assert.Nil(t, err)
		UpdateChecksum(p)
		// flip one byte in the payload
		p[HeaderSize+100] ^= 0xff
		assert.False(t, VerifyChecksum(p))
	})
	t.Run("when the header is updated", func(t *testing.T) {
		// the checksum covers only the payload, so updating the number
		// must not invalidate it
		p, err := TestingNewRandomPage()
		assert.Nil(t, err)
		UpdateChecksum(p)
		SetNumber(p, PageID(7))
		assert.True(t, VerifyChecksum(p))
	})
}

func TestNextFree(t *testing.T) {
	p := NewPagePtr()
	SetNextFree(p, PageID(3))
	assert.Equal(t, PageID(3), NextFree(p))
	SetNextFree(p, InvalidPageID)
	assert.Equal(t, InvalidPageID, NextFree(p))
}

func TestPayload(t *testing.T) {
	p := NewPagePtr()
	assert.Equal(t, PayloadSize, len(Payload(p)))
}
