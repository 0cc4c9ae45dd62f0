package scan

// Detector decodes a barcode out of a frame. A frame with no readable
// code returns ok=false.
type Detector interface {
	Detect(frame Frame) (code string, ok bool)
}

// DetectorPicker returns the first usable detector, preferring the
// native one and falling back to the secondary decoder. When none is
// available it returns a detector that never reads a code, so the
// pipeline stays safe to run and manual entry remains the only path.
func DetectorPicker(preferred ...Detector) Detector {
	for _, detector := range preferred {
		if detector != nil {
			return detector
		}
	}
	return NoDetector{}
}

// NoDetector reads no codes out of any frame.
type NoDetector struct{}

func (NoDetector) Detect(Frame) (string, bool) {
	return "", false
}
