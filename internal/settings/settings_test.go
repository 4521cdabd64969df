package settings

import (
	"testing"

	"github.com/veristream/callshield/internal/config"
)

func TestStatic_CurrentReflectsSet(t *testing.T) {
	p := NewStatic(Settings{DetectionEnabled: true, AlertThreshold: 0.7})

	got := p.Current()
	if !got.DetectionEnabled || got.AlertThreshold != 0.7 {
		t.Errorf("Unexpected initial settings: %+v", got)
	}

	p.Set(Settings{DetectionEnabled: false, AlertThreshold: 0.9})
	got = p.Current()
	if got.DetectionEnabled || got.AlertThreshold != 0.9 {
		t.Errorf("Set did not take effect: %+v", got)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{DetectionEnabled: true, DetectionThreshold: 0.7}
	p := FromConfig(cfg)

	got := p.Current()
	if !got.DetectionEnabled {
		t.Error("Expected detection enabled")
	}
	if got.AlertThreshold != 0.7 {
		t.Errorf("Expected threshold 0.7, got %f", got.AlertThreshold)
	}
}
