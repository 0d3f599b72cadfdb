package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivityFilename(t *testing.T) {
	assert.Equal(t, "Morning_Run", activityFilename("Morning Run"))
	assert.Equal(t, "Cafe_tour", activityFilename("Café tour"))
	assert.Equal(t, "Run_km", activityFilename("Run 10.5 km!"))
	assert.Equal(t, "trail_run", activityFilename("  trail   run  "))
	assert.Equal(t, "my_loop", activityFilename("my_loop"))
}

func TestActivityFilename_Empty(t *testing.T) {
	// nothing usable left: caller falls back to the label ID
	assert.Equal(t, "", activityFilename("12345"))
	assert.Equal(t, "", activityFilename(""))
	assert.Equal(t, "", activityFilename("   "))
}
