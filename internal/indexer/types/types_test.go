package types

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeInfoHash(t *testing.T) {
	valid := strings.Repeat("0a1b", 10)

	hash, ok := NormalizeInfoHash(valid)
	assert.True(t, ok)
	assert.Equal(t, valid, hash)

	hash, ok = NormalizeInfoHash("  " + strings.ToUpper(valid) + "  ")
	assert.True(t, ok)
	assert.Equal(t, valid, hash)

	hash, ok = NormalizeInfoHash("urn:btih:" + valid)
	assert.True(t, ok)
	assert.Equal(t, valid, hash)

	// Too short, too long, not hex.
	for _, bad := range []string{"", "zzz", valid[:39], valid + "0", valid[:39] + "g"} {
		_, ok := NormalizeInfoHash(bad)
		assert.False(t, ok, "input %q", bad)
	}
}

func TestHealthRowSupportsContent(t *testing.T) {
	row := &HealthRow{ContentTypes: []ContentType{ContentMovie, ContentSeries}}
	assert.True(t, row.SupportsContent(ContentMovie))
	assert.False(t, row.SupportsContent(ContentAnime))

	empty := &HealthRow{}
	assert.False(t, empty.SupportsContent(ContentMovie))
}

func TestHealthRowIsDisabled(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.False(t, (&HealthRow{}).IsDisabled(now))
	assert.True(t, (&HealthRow{DisabledUntil: &future}).IsDisabled(now))
	assert.False(t, (&HealthRow{DisabledUntil: &past}).IsDisabled(now))
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	cookies := []Cookie{{Name: "cf_clearance", Value: "x"}}

	assert.False(t, (&Session{Cookies: cookies, ExpiresAt: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&Session{Cookies: cookies, ExpiresAt: now}).Expired(now))
	assert.True(t, (&Session{Cookies: cookies, ExpiresAt: now.Add(-time.Minute)}).Expired(now))

	// A session without cookies is never usable.
	assert.True(t, (&Session{ExpiresAt: now.Add(time.Hour)}).Expired(now))
}
