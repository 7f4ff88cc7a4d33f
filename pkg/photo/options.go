package photo

import (
	"fmt"
	"strconv"
	"strings"
)

// Ratio is a width:height aspect ratio such as 16:9.
type Ratio struct {
	W int `json:"w"`
	H int `json:"h"`
}

// ParseRatio parses "16:9" (or "16/9") into a Ratio.
func ParseRatio(s string) (Ratio, error) {
	sep := ":"
	if !strings.Contains(s, sep) {
		sep = "/"
	}
	parts := strings.SplitN(strings.TrimSpace(s), sep, 2)
	if len(parts) != 2 {
		return Ratio{}, fmt.Errorf("invalid aspect ratio %q", s)
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil {
		return Ratio{}, fmt.Errorf("invalid aspect ratio %q", s)
	}
	r := Ratio{W: w, H: h}
	if !r.Valid() {
		return Ratio{}, fmt.Errorf("aspect ratio %q must be positive", s)
	}
	return r, nil
}

// Valid reports whether both terms are positive.
func (r Ratio) Valid() bool {
	return r.W > 0 && r.H > 0
}

// Float returns W/H.
func (r Ratio) Float() float64 {
	return float64(r.W) / float64(r.H)
}

func (r Ratio) String() string {
	return fmt.Sprintf("%d:%d", r.W, r.H)
}

// CropStrategy selects how the crop region is chosen.
type CropStrategy string

const (
	CropCenter CropStrategy = "center"
	CropSmart  CropStrategy = "smart" // content-aware, still exact ratio
)

// Options holds the tuning values for the normalizer.
// Qualities are in the 0..1 range used by browser canvas encoders.
type Options struct {
	TargetAspectRatio Ratio        `json:"target_aspect_ratio"` // Default: 16:9
	MaxOutputWidth    int          `json:"max_output_width"`    // Default: 1280
	ByteBudget        int          `json:"byte_budget"`         // Default: 160 KB
	InitialQuality    float64      `json:"initial_quality"`     // Default: 0.82
	QualityDecrement  float64      `json:"quality_decrement"`   // Default: 0.07
	QualityFloor      float64      `json:"quality_floor"`       // Default: 0.2
	CropStrategy      CropStrategy `json:"crop_strategy"`       // Default: center
	MaxSourcePixels   int          `json:"max_source_pixels"`   // Default: 50 MP
}

// DefaultOptions returns the values used for listing photos.
func DefaultOptions() Options {
	return Options{
		TargetAspectRatio: Ratio{W: 16, H: 9},
		MaxOutputWidth:    1280,
		ByteBudget:        160 * 1024,
		InitialQuality:    0.82,
		QualityDecrement:  0.07,
		QualityFloor:      0.2,
		CropStrategy:      CropCenter,
		MaxSourcePixels:   50_000_000,
	}
}

// Validate rejects option sets the re-encode loop cannot terminate or progress on.
func (o Options) Validate() error {
	switch {
	case !o.TargetAspectRatio.Valid():
		return fmt.Errorf("target aspect ratio %s must be positive", o.TargetAspectRatio)
	case o.MaxOutputWidth <= 0:
		return fmt.Errorf("max output width must be positive, got %d", o.MaxOutputWidth)
	case o.ByteBudget <= 0:
		return fmt.Errorf("byte budget must be positive, got %d", o.ByteBudget)
	case o.InitialQuality <= 0 || o.InitialQuality > 1:
		return fmt.Errorf("initial quality must be in (0, 1], got %v", o.InitialQuality)
	case o.QualityFloor <= 0 || o.QualityFloor > o.InitialQuality:
		return fmt.Errorf("quality floor must be in (0, %v], got %v", o.InitialQuality, o.QualityFloor)
	case o.QualityDecrement < 0.01:
		return fmt.Errorf("quality decrement must be at least 0.01, got %v", o.QualityDecrement)
	case o.MaxSourcePixels <= 0:
		return fmt.Errorf("max source pixels must be positive, got %d", o.MaxSourcePixels)
	}
	switch o.CropStrategy {
	case "", CropCenter, CropSmart:
	default:
		return fmt.Errorf("unknown crop strategy %q", o.CropStrategy)
	}
	return nil
}

// MaxAttempts is the upper bound on encode attempts for these options:
// ceil((initial - floor) / decrement) + 1.
func (o Options) MaxAttempts() int {
	span := permille(o.InitialQuality) - permille(o.QualityFloor)
	step := permille(o.QualityDecrement)
	return (span+step-1)/step + 1
}
