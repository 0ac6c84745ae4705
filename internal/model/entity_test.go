package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitEntityID(t *testing.T) {
	cases := []struct {
		in     string
		domain string
		local  string
	}{
		{"light.porch", "light", "porch"},
		{"lock.front_door", "lock", "front_door"},
		{"nodomain", "nodomain", ""},
	}

	for _, c := range cases {
		domain, local := SplitEntityID(c.in)
		assert.Equal(t, c.domain, domain, c.in)
		assert.Equal(t, c.local, local, c.in)
	}
}

func TestEntityLocalName(t *testing.T) {
	e := Entity{EntityID: "binary_sensor.front_door"}
	assert.Equal(t, "front_door", e.LocalName())
}

func TestTimeBucketForHour(t *testing.T) {
	cases := map[int]TimeBucket{
		6:  BucketEarlyMorning,
		10: BucketMorning,
		13: BucketMidday,
		15: BucketAfternoon,
		18: BucketEvening,
		21: BucketNight,
		2:  BucketLateNight,
	}
	for hour, want := range cases {
		assert.Equal(t, want, TimeBucketForHour(hour))
	}
}

func TestServiceForInferenceTable(t *testing.T) {
	cases := []struct {
		entity, state, want string
	}{
		{"light.hall", "on", "turn_on"},
		{"switch.fan", "off", "turn_off"},
		{"lock.front_door", "locked", "lock"},
		{"lock.front_door", "unlocked", "unlock"},
		{"cover.garage", "open", "open_cover"},
		{"cover.garage", "closed", "close_cover"},
		{"media_player.tv", "playing", "media_play"},
		{"media_player.tv", "paused", "media_pause"},
		{"media_player.tv", "idle", "media_stop"},
		{"climate.thermostat", "heat", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ServiceFor(c.entity, c.state), "%s/%s", c.entity, c.state)
	}
}
