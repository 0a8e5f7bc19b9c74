package metadata

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"testing"
)

func TestDMSToDecimal(t *testing.T) {
	tests := []struct {
		name          string
		deg, min, sec float64
		ref           string
		want          float64
	}{
		{"north", 40, 26, 46, "N", 40.446111},
		{"south negates", 40, 26, 46, "S", -40.446111},
		{"east", 79, 58, 56, "E", 79.982222},
		{"west negates", 79, 58, 56, "W", -79.982222},
		{"zero", 0, 0, 0, "N", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dmsToDecimal(tt.deg, tt.min, tt.sec, tt.ref)
			if math.Abs(got-tt.want) > 1e-5 {
				t.Errorf("dmsToDecimal(%v, %v, %v, %q) = %v, want %v",
					tt.deg, tt.min, tt.sec, tt.ref, got, tt.want)
			}
		})
	}
}

func TestExtract_NoEXIF(t *testing.T) {
	// A plain PNG has no EXIF block; extraction must yield a zero Info
	// rather than an error.
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}

	info := Extract(buf.Bytes())
	if info.CaptureTime != nil {
		t.Errorf("expected nil CaptureTime, got %v", info.CaptureTime)
	}
	if info.HasGPS() {
		t.Errorf("expected no GPS, got (%v, %v)", info.Latitude, info.Longitude)
	}
	if info.Orientation != 0 {
		t.Errorf("expected orientation 0, got %d", info.Orientation)
	}
}

func TestExtract_GarbageInput(t *testing.T) {
	info := Extract([]byte("definitely not an image"))
	if info.CaptureTime != nil || info.HasGPS() || info.Orientation != 0 {
		t.Errorf("expected zero Info for garbage input, got %+v", info)
	}
}

func TestHasGPS(t *testing.T) {
	lat, lon := 40.0, -79.0

	if (Info{}).HasGPS() {
		t.Error("zero Info should not report GPS")
	}
	if (Info{Latitude: &lat}).HasGPS() {
		t.Error("latitude alone should not report GPS")
	}
	if !(Info{Latitude: &lat, Longitude: &lon}).HasGPS() {
		t.Error("both coordinates set should report GPS")
	}
}
