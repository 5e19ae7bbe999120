package doctor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelStats(t *testing.T) {
	var s levelStats
	for _, db := range []float64{-60, -50, -40, -25} {
		s.add(db, -30)
	}
	assert.Equal(t, 4, s.n)
	assert.Equal(t, -60.0, s.min)
	assert.Equal(t, -25.0, s.max)
	assert.Equal(t, -43.75, s.mean())
	assert.Equal(t, 1, s.above)
	assert.Contains(t, s.String(), "max -25.0")
}

func TestSuggestThreshold(t *testing.T) {
	var s levelStats
	s.add(-52.3, -30)
	s.add(-48.6, -30)
	assert.Equal(t, -42.0, s.suggest())

	var hot levelStats
	hot.add(-2, -30)
	assert.Equal(t, 0.0, hot.suggest())
}

func TestMeterBar(t *testing.T) {
	bar := meterBar(-40, -30)
	assert.Len(t, bar, meterWidth+2)
	assert.Equal(t, 1, strings.Count(bar, "|"))
	assert.Equal(t, 20, strings.Count(bar, "#"))

	assert.Equal(t, 0, strings.Count(meterBar(-160, -30), "#"))
	assert.Equal(t, meterWidth-1, strings.Count(meterBar(0, -30), "#"))
}
