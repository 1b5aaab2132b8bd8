package preset

import "sync/atomic"

// Settings holds the active post-processing selection. Fields are atomic so a
// UI goroutine may change them while the renderer reads them once per frame.
type Settings struct {
	shader  atomic.Pointer[string]
	samples atomic.Int32
}

// NewSettings returns settings selecting the named preset with the given
// anti-aliasing sample count.
func NewSettings(shader string, samples int) *Settings {
	s := &Settings{}
	s.SetPostProcessingShader(shader)
	s.SetSampleCount(samples)
	return s
}

// PostProcessingShader returns the selected preset identifier.
func (s *Settings) PostProcessingShader() string {
	if p := s.shader.Load(); p != nil {
		return *p
	}
	return ""
}

// SetPostProcessingShader selects a preset; "" selects the default pass.
func (s *Settings) SetPostProcessingShader(name string) {
	s.shader.Store(&name)
}

// SampleCount returns the anti-aliasing sample count, at least 1.
func (s *Settings) SampleCount() int {
	if n := int(s.samples.Load()); n > 1 {
		return n
	}
	return 1
}

// SetSampleCount sets the anti-aliasing sample count. Values below 1 mean 1.
func (s *Settings) SetSampleCount(n int) {
	if n < 1 {
		n = 1
	}
	s.samples.Store(int32(n))
}
