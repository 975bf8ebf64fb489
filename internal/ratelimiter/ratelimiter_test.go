package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinBurstSucceeds(t *testing.T) {
	l := New()
	defer l.Close()
	l.SetTier(TierBasic, TierLimits{RPM: 600, Burst: 3})

	key := Key("user-1", "")
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(key, TierBasic))
	}
	assert.False(t, l.Allow(key, TierBasic))
}

func TestAllowSeparatesKeys(t *testing.T) {
	l := New()
	defer l.Close()
	l.SetTier(TierBasic, TierLimits{RPM: 600, Burst: 1})

	assert.True(t, l.Allow(Key("user-1", ""), TierBasic))
	assert.True(t, l.Allow(Key("user-2", ""), TierBasic))
}

func TestKeyPrefersPrincipalOverIP(t *testing.T) {
	assert.Equal(t, "principal:u1", Key("u1", "1.2.3.4"))
	assert.Equal(t, "ip:1.2.3.4", Key("", "1.2.3.4"))
}

func TestUnknownTierFallsBackToAnonymous(t *testing.T) {
	l := New()
	defer l.Close()
	l.SetTier(TierAnonymous, TierLimits{RPM: 600, Burst: 1})

	key := Key("", "5.6.7.8")
	assert.True(t, l.Allow(key, Tier("bogus")))
	assert.False(t, l.Allow(key, Tier("bogus")))
}

func TestLimitsForFallsBackToAnonymous(t *testing.T) {
	l := New()
	defer l.Close()
	l.SetTier(TierAnonymous, TierLimits{RPM: 60, Burst: 10})
	l.SetTier(TierPro, TierLimits{RPM: 3000, Burst: 200})

	assert.Equal(t, TierLimits{RPM: 3000, Burst: 200}, l.LimitsFor(TierPro))
	assert.Equal(t, TierLimits{RPM: 60, Burst: 10}, l.LimitsFor(Tier("bogus")))
}

func TestBucketCountTracksDistinctKeys(t *testing.T) {
	l := New()
	defer l.Close()

	l.Allow(Key("a", ""), TierBasic)
	l.Allow(Key("b", ""), TierBasic)
	assert.Equal(t, 2, l.BucketCount())
}

func TestSweepStaleRemovesOldBuckets(t *testing.T) {
	l := New()
	defer l.Close()
	l.staleAfter = time.Millisecond

	l.Allow(Key("a", ""), TierBasic)
	time.Sleep(5 * time.Millisecond)
	l.sweepStale()
	assert.Equal(t, 0, l.BucketCount())
}
