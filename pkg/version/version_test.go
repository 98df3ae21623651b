package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	out := String("floorplan")
	assert.Contains(t, out, "floorplan dev")
	assert.Contains(t, out, "commit: none")
	assert.Contains(t, out, "built:  unknown")
}
