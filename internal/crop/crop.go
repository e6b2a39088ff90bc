/*
Package crop implements C4, the Crop Extractor: given a frame and its
crop-JSON, produce one TableCrop per table spec, deterministically and
without network or DB calls (§4.4). Grounded on the teacher gateway's
small single-purpose transform packages (no direct crop analogue exists
in the teacher; this follows its plain-function, explicit-error style).
*/
package crop

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/rs/zerolog"

	"github.com/alfred-ops/restaurant-core/internal/domain"
)

const component = "crop"

// minCropDimension is the §4.4 step 2 threshold below which a crop is
// skipped rather than produced.
const minCropDimension = 8

// TableCrop is one extracted crop image for a single table spec.
type TableCrop struct {
	JSONTableID string
	ImageBytes  []byte
	Width       int
	Height      int
}

// Extract decodes frameBytes and produces a TableCrop for every entry in
// cj.Tables whose axis-aligned bounding rectangle survives clamping,
// logging an "invalid crop" warning for any that don't (§4.4).
func Extract(frameBytes []byte, cj *domain.CropJSON, logger zerolog.Logger) ([]TableCrop, error) {
	img, format, err := image.Decode(bytes.NewReader(frameBytes))
	if err != nil {
		return nil, domain.Input(component, fmt.Sprintf("decode frame: %v", err))
	}

	var crops []TableCrop
	for _, spec := range cj.Tables {
		x0, y0, x1, y1 := axisAlignedRect(spec.RotatedBBox)
		x0, y0, x1, y1 = clamp(x0, y0, x1, y1, cj.FrameWidth, cj.FrameHeight)

		w, h := x1-x0, y1-y0
		if w < minCropDimension || h < minCropDimension {
			logger.Warn().
				Str("json_table_id", spec.JSONTableID).
				Int("width", w).Int("height", h).
				Msg("invalid crop: below minimum dimension, skipping")
			continue
		}

		sub := cropImage(img, x0, y0, x1, y1)
		encoded, err := encode(sub, format)
		if err != nil {
			return nil, fmt.Errorf("encode crop for table %s: %w", spec.JSONTableID, err)
		}

		crops = append(crops, TableCrop{
			JSONTableID: spec.JSONTableID,
			ImageBytes:  encoded,
			Width:       w,
			Height:      h,
		})
	}
	return crops, nil
}

// axisAlignedRect computes the axis-aligned bounding rectangle of a
// rotated bbox's four corners (§4.4 step 1).
func axisAlignedRect(b domain.RotatedBBox) (x0, y0, x1, y1 int) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range b.Corners {
		minX = math.Min(minX, c[0])
		minY = math.Min(minY, c[1])
		maxX = math.Max(maxX, c[0])
		maxY = math.Max(maxY, c[1])
	}
	return int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY))
}

// clamp restricts a rectangle to [0, frameW-1] x [0, frameH-1] (§4.4 step 2).
func clamp(x0, y0, x1, y1, frameW, frameH int) (int, int, int, int) {
	x0 = clampInt(x0, 0, frameW-1)
	y0 = clampInt(y0, 0, frameH-1)
	x1 = clampInt(x1, 0, frameW-1)
	y1 = clampInt(y1, 0, frameH-1)
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return x0, y0, x1, y1
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func cropImage(img image.Image, x0, y0, x1, y1 int) image.Image {
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	rect := image.Rect(x0, y0, x1, y1)
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	dst := image.NewRGBA(image.Rect(0, 0, x1-x0, y1-y0))
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			dst.Set(x-x0, y-y0, img.At(x, y))
		}
	}
	return dst
}

// encode re-encodes img in the same format as the source frame (§4.4
// step 4). Unrecognized formats fall back to PNG.
func encode(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, err
		}
	default:
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
