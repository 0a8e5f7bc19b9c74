// Package metadata extracts embedded EXIF metadata from image files:
// the capture timestamp, GPS coordinates, and the orientation tag.
//
// Extraction is total: any malformed or missing tag structure yields
// "not present" rather than an error, because the ingestion pipeline
// treats every metadata failure as absence.
package metadata

import (
	"bytes"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// exifTimeLayout is the EXIF DateTimeOriginal format, e.g. "2023:07:14 16:02:55".
const exifTimeLayout = "2006:01:02 15:04:05"

// Info holds the metadata extracted from one image. Pointer fields are nil
// when the corresponding tag is absent or unparsable.
type Info struct {
	// CaptureTime is the EXIF DateTimeOriginal value.
	CaptureTime *time.Time

	// Latitude and Longitude are signed decimal degrees. Either both are
	// set or both are nil.
	Latitude  *float64
	Longitude *float64

	// Orientation is the EXIF orientation tag (1-8), or 0 when absent.
	Orientation int
}

// HasGPS reports whether both coordinates were extracted.
func (i Info) HasGPS() bool {
	return i.Latitude != nil && i.Longitude != nil
}

// Extract reads EXIF metadata from raw image bytes. It never fails: images
// without EXIF data (or with corrupt EXIF blocks) produce a zero Info.
func Extract(data []byte) Info {
	var info Info

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil || x == nil {
		return info
	}

	info.CaptureTime = captureTime(x)
	info.Latitude, info.Longitude = gpsCoordinates(x)
	info.Orientation = orientation(x)

	return info
}

// captureTime parses the DateTimeOriginal tag, returning nil on absence or
// parse failure.
func captureTime(x *exif.Exif) *time.Time {
	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return nil
	}
	raw, err := tag.StringVal()
	if err != nil {
		return nil
	}
	t, err := time.ParseInLocation(exifTimeLayout, raw, time.Local)
	if err != nil {
		return nil
	}
	return &t
}

// gpsCoordinates reads the GPS degree/minute/second triples and hemisphere
// references, converting them to signed decimal degrees. Any malformed or
// missing part of the GPS block yields (nil, nil).
func gpsCoordinates(x *exif.Exif) (*float64, *float64) {
	lat, ok := dmsTag(x, exif.GPSLatitude, exif.GPSLatitudeRef)
	if !ok {
		return nil, nil
	}
	lon, ok := dmsTag(x, exif.GPSLongitude, exif.GPSLongitudeRef)
	if !ok {
		return nil, nil
	}
	return &lat, &lon
}

// dmsTag reads one coordinate (a rational triple plus its hemisphere
// reference) and returns it as signed decimal degrees.
func dmsTag(x *exif.Exif, field, refField exif.FieldName) (float64, bool) {
	tag, err := x.Get(field)
	if err != nil {
		return 0, false
	}

	var parts [3]float64
	for i := range parts {
		num, den, err := tag.Rat2(i)
		if err != nil || den == 0 {
			return 0, false
		}
		parts[i] = float64(num) / float64(den)
	}

	refTag, err := x.Get(refField)
	if err != nil {
		return 0, false
	}
	ref, err := refTag.StringVal()
	if err != nil {
		return 0, false
	}

	return dmsToDecimal(parts[0], parts[1], parts[2], ref), true
}

// dmsToDecimal converts a degree/minute/second triple to decimal degrees.
// Southern and western hemisphere references negate the value.
func dmsToDecimal(deg, min, sec float64, ref string) float64 {
	decimal := deg + min/60 + sec/3600
	if ref == "S" || ref == "W" {
		return -decimal
	}
	return decimal
}

// orientation reads the EXIF orientation tag (1-8), returning 0 on absence.
func orientation(x *exif.Exif) int {
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 0
	}
	return o
}
