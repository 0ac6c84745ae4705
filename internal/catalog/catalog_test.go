package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ha-autopilot/miner/internal/model"
)

// Classify's binary_sensor branch looks up device_class in the recorder
// database and is not covered here; these cases cover the cascade that
// does not touch the database at all (spec.md §4.1).
func TestClassifyCascade(t *testing.T) {
	c := New(nil, nil, []string{"sensor.special"}, []string{"light.blocked"})
	ctx := context.Background()

	cases := []struct {
		name, entity, domain string
		want                 model.SignalLevel
	}{
		{"custom exclude beats high-signal domain", "light.blocked", "light", model.SignalExclude},
		{"custom include beats default-low domain", "sensor.special", "sensor", model.SignalHigh},
		{"exclude domain", "weather.home", "weather", model.SignalExclude},
		{"high-signal domain", "light.hall", "light", model.SignalHigh},
		{"medium-signal domain", "climate.living", "climate", model.SignalMedium},
		{"default low", "sensor.temperature", "sensor", model.SignalLow},
		{"sun is excluded", "sun.sun", "sun", model.SignalExclude},
		{"person is high signal", "person.alice", "person", model.SignalHigh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(ctx, tc.entity, tc.domain)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClassifyCustomExcludeBeatsCustomInclude(t *testing.T) {
	// Per spec.md §4.1's cascade, custom-exclude is checked before
	// custom-include, so an entity in both lists is excluded.
	c := New(nil, nil, []string{"light.x"}, []string{"light.x"})
	got := c.Classify(context.Background(), "light.x", "light")
	assert.Equal(t, model.SignalExclude, got)
}
