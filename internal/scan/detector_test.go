package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorPicker(t *testing.T) {
	// no candidates: the pipeline still gets a safe never-ok detector
	detector := DetectorPicker()
	require.NotNil(t, detector)
	code, ok := detector.Detect(Frame("737628064502"))
	assert.False(t, ok)
	assert.Empty(t, code)

	// nil candidates are skipped
	detector = DetectorPicker(nil, codeDetector{})
	require.NotNil(t, detector)
	code, ok = detector.Detect(Frame("737628064502"))
	assert.True(t, ok)
	assert.Equal(t, "737628064502", code)
}
