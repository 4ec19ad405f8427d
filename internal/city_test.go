package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnit_ParseCity(t *testing.T) {
	tests := []struct {
		raw  string
		want City
	}{
		{"MOSCOW", Moscow},
		{"moscow", Moscow},
		{"msk", Moscow},
		{"spb", SPB},
		{"Balashiha", Balashiha},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseCity(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseCity("atlantis")
	require.ErrorIs(t, err, ErrUnknownCity)
}

func TestUnit_City_TableIsComplete(t *testing.T) {
	seenCodes := map[string]bool{}
	for _, c := range Cities() {
		assert.NotEqual(t, "UNKNOWN", c.String())
		assert.NotEmpty(t, c.Code(), "%s: code", c)
		assert.Equal(t, c.String()+":", c.CachePrefix())
		assert.NotEqual(t, "UTC", c.Location().String(), "%s: zone", c)
		assert.False(t, seenCodes[c.Code()], "%s: duplicate code", c)
		seenCodes[c.Code()] = true
	}
}
