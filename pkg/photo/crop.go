package photo

import (
	"fmt"
	"image"
)

// CropRegion is a rectangle in source pixel space.
type CropRegion struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect returns the region as an image.Rectangle offset by origin.
func (c CropRegion) Rect(origin image.Point) image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height).Add(origin)
}

// CenterCrop computes the largest region of the given ratio centered in a
// srcW x srcH image. A source wider than the ratio keeps its full height;
// otherwise it keeps its full width.
func CenterCrop(srcW, srcH int, ratio Ratio) (CropRegion, error) {
	if srcW <= 0 || srcH <= 0 {
		return CropRegion{}, fmt.Errorf("invalid source size %dx%d", srcW, srcH)
	}
	if !ratio.Valid() {
		return CropRegion{}, fmt.Errorf("invalid aspect ratio %s", ratio)
	}

	var cropW, cropH int
	if srcW*ratio.H > srcH*ratio.W {
		cropH = srcH
		cropW = clamp(divRound(srcH*ratio.W, ratio.H), 1, srcW)
	} else {
		cropW = srcW
		cropH = clamp(divRound(srcW*ratio.H, ratio.W), 1, srcH)
	}

	return CropRegion{
		X:      (srcW - cropW) / 2,
		Y:      (srcH - cropH) / 2,
		Width:  cropW,
		Height: cropH,
	}, nil
}

// OutputSize returns the rendered size for a crop: the crop width clamped to
// maxWidth (never upscaled) and the height that keeps the ratio.
func OutputSize(crop CropRegion, ratio Ratio, maxWidth int) (int, int) {
	w := crop.Width
	if maxWidth > 0 && w > maxWidth {
		w = maxWidth
	}
	h := clamp(divRound(w*ratio.H, ratio.W), 1, crop.Height)
	return w, h
}

// fitRegion shrinks an arbitrary rectangle (e.g. a smartcrop suggestion) to the
// exact ratio, centered inside it and clipped to bounds.
func fitRegion(r image.Rectangle, bounds image.Rectangle, ratio Ratio) (CropRegion, error) {
	r = r.Intersect(bounds)
	if r.Empty() {
		return CropRegion{}, fmt.Errorf("crop %v outside image bounds %v", r, bounds)
	}
	inner, err := CenterCrop(r.Dx(), r.Dy(), ratio)
	if err != nil {
		return CropRegion{}, err
	}
	inner.X += r.Min.X - bounds.Min.X
	inner.Y += r.Min.Y - bounds.Min.Y
	return inner, nil
}

func divRound(n, d int) int {
	return (n + d/2) / d
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
