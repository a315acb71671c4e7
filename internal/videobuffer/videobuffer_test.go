package videobuffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLatestWinsDrop exercises scenario S3: offer_frame(A), offer_frame(B)
// with no intervening consumer. on_frame_available must fire exactly once
// (for A), on_frame_skipped exactly once (for B overwriting A), and the
// following take_frame must yield B.
func TestLatestWinsDrop(t *testing.T) {
	buf := New()

	var mu sync.Mutex
	var available, skipped int
	buf.SetConsumerCallbacks(Callbacks{
		OnFrameAvailable: func() { mu.Lock(); available++; mu.Unlock() },
		OnFrameSkipped:   func() { mu.Lock(); skipped++; mu.Unlock() },
	})

	a := &Frame{Width: 1}
	b := &Frame{Width: 2}

	buf.Offer(a)
	buf.Offer(b)

	assert.Equal(t, 1, available)
	assert.Equal(t, 1, skipped)

	got := buf.Take()
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Width)
}

func TestOfferThenTakeThenOffer_AlwaysAvailable(t *testing.T) {
	buf := New()
	var available, skipped int
	buf.SetConsumerCallbacks(Callbacks{
		OnFrameAvailable: func() { available++ },
		OnFrameSkipped:   func() { skipped++ },
	})

	buf.Offer(&Frame{Width: 1})
	buf.Take()
	buf.Offer(&Frame{Width: 2})

	assert.Equal(t, 2, available)
	assert.Equal(t, 0, skipped)
}

// TestNeverBothCallbacks covers invariant 1: after Offer returns, exactly
// one of the two callbacks has fired, never both.
func TestNeverBothCallbacks(t *testing.T) {
	buf := New()
	var available, skipped int
	buf.SetConsumerCallbacks(Callbacks{
		OnFrameAvailable: func() { available++ },
		OnFrameSkipped:   func() { skipped++ },
	})

	for i := 0; i < 10; i++ {
		available, skipped = 0, 0
		buf.Offer(&Frame{Width: i})
		assert.Equal(t, 1, available+skipped, "exactly one callback must fire per Offer")
	}
}

func TestOptionalOnFrameSkipped(t *testing.T) {
	buf := New()
	var available int
	buf.SetConsumerCallbacks(Callbacks{
		OnFrameAvailable: func() { available++ },
	})

	assert.NotPanics(t, func() {
		buf.Offer(&Frame{})
		buf.Offer(&Frame{}) // would invoke OnFrameSkipped, which is nil
	})
	assert.Equal(t, 1, available)
}

func TestInterrupt_NoOp(t *testing.T) {
	buf := New()
	assert.NotPanics(t, buf.Interrupt)
}
