package photo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"math"
	"strings"

	"github.com/disintegration/imageorient"
	"github.com/disintegration/imaging"
	"github.com/muesli/smartcrop"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/muvahhid/molayeri-sub002/util/log"
)

// ContentTypeJPEG is the content type of every normalized photo.
const ContentTypeJPEG = "image/jpeg"

// Source is one user-picked file.
type Source struct {
	Name        string
	ContentType string // optional, must be image/* when set
	Data        []byte
}

// Attempt records one pass of the re-encode loop.
type Attempt struct {
	Quality   float64 `json:"quality"`
	SizeBytes int     `json:"size_bytes"`
}

// Result is a normalized JPEG.
type Result struct {
	Data        []byte     `json:"-"`
	ContentType string     `json:"content_type"`
	SizeBytes   int        `json:"size_bytes"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Crop        CropRegion `json:"crop"`
	Quality     float64    `json:"quality"`
	Attempts    []Attempt  `json:"attempts"`
	BudgetMet   bool       `json:"budget_met"`
}

// Err returns ErrBudgetExceeded for best-effort results and nil otherwise.
// Callers log it; they do not reject the photo.
func (r Result) Err() error {
	if r.BudgetMet {
		return nil
	}
	return ErrBudgetExceeded
}

// EncodeFunc writes img as JPEG at the given 1..100 quality.
type EncodeFunc func(w io.Writer, img image.Image, quality int) error

func encodeJPEG(w io.Writer, img image.Image, quality int) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

// Normalizer crops, resizes and size-budgets photos.
type Normalizer struct {
	opts      Options
	resampler imaging.ResampleFilter
	encode    EncodeFunc
}

// NewNormalizer returns a Normalizer for opts, or ErrPipelineUnavailable when
// the options cannot drive the pipeline.
func NewNormalizer(opts Options) (*Normalizer, error) {
	if opts.CropStrategy == "" {
		opts.CropStrategy = CropCenter
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPipelineUnavailable, err)
	}
	return &Normalizer{
		opts:      opts,
		resampler: imaging.Lanczos,
		encode:    encodeJPEG,
	}, nil
}

// Options returns the options the normalizer was built with.
func (n *Normalizer) Options() Options {
	return n.opts
}

// Normalize runs decode, render and encode for one source.
func (n *Normalizer) Normalize(ctx context.Context, src Source) (Result, error) {
	img, err := n.Decode(ctx, src)
	if err != nil {
		return Result{}, err
	}

	rendered, crop, err := n.Render(ctx, img)
	if err != nil {
		return Result{}, err
	}

	res, err := n.encodeBounded(ctx, src.Name, rendered)
	if err != nil {
		return Result{}, err
	}
	res.Crop = crop

	if !res.BudgetMet {
		log.Printf("photo %q: %v (%d bytes at quality %.2f, budget %d)",
			src.Name, res.Err(), res.SizeBytes, res.Quality, n.opts.ByteBudget)
	}
	return res, nil
}

// Decode decodes src honoring EXIF orientation.
func (n *Normalizer) Decode(ctx context.Context, src Source) (image.Image, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	if src.ContentType != "" && !strings.HasPrefix(src.ContentType, "image/") {
		return nil, &DecodeError{Name: src.Name, Err: fmt.Errorf("unsupported content type %q", src.ContentType)}
	}
	if len(src.Data) == 0 {
		return nil, &DecodeError{Name: src.Name, Err: errors.New("empty file")}
	}

	// The header is enough to refuse sources whose pixel buffer would not fit.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(src.Data))
	if err != nil {
		return nil, &DecodeError{Name: src.Name, Err: err}
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(n.opts.MaxSourcePixels) {
		return nil, &DecodeError{Name: src.Name, Err: fmt.Errorf("image dimensions %dx%d exceed maximum of %d pixels",
			cfg.Width, cfg.Height, n.opts.MaxSourcePixels)}
	}

	img, format, err := imageorient.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return nil, &DecodeError{Name: src.Name, Err: err}
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Name: src.Name, Err: fmt.Errorf("empty image bounds %v", b)}
	}
	log.Debugf("photo %q: decoded %s %dx%d", src.Name, format, img.Bounds().Dx(), img.Bounds().Dy())

	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	return img, nil
}

// Render crops img to the target ratio and scales it down to the output size.
func (n *Normalizer) Render(ctx context.Context, img image.Image) (image.Image, CropRegion, error) {
	if err := checkContext(ctx); err != nil {
		return nil, CropRegion{}, err
	}

	bounds := img.Bounds()
	ratio := n.opts.TargetAspectRatio

	crop, err := CenterCrop(bounds.Dx(), bounds.Dy(), ratio)
	if err != nil {
		return nil, CropRegion{}, fmt.Errorf("computing crop: %w", err)
	}
	if n.opts.CropStrategy == CropSmart {
		if smart, err := n.smartCrop(ctx, img); err == nil {
			crop = smart
		} else if ctx.Err() != nil {
			return nil, CropRegion{}, ctx.Err()
		} else {
			log.Printf("smart crop failed, using center crop: %v", err)
		}
	}

	w, h := OutputSize(crop, ratio, n.opts.MaxOutputWidth)
	r := &resizer{resampler: n.resampler}
	out := r.resizeWithContext(ctx, imaging.Crop(img, crop.Rect(bounds.Min)), w, h)
	if out == nil {
		return nil, CropRegion{}, ctx.Err()
	}
	return out, crop, nil
}

// smartCrop asks smartcrop for the most interesting region, then trims it to
// the exact ratio.
func (n *Normalizer) smartCrop(ctx context.Context, img image.Image) (CropRegion, error) {
	ratio := n.opts.TargetAspectRatio
	analyzer := smartcrop.NewAnalyzer(&resizer{resampler: n.resampler})

	type cropResult struct {
		crop image.Rectangle
		err  error
	}
	resultChan := make(chan cropResult, 1)

	go func() {
		topCrop, err := analyzer.FindBestCrop(img, ratio.W, ratio.H)
		resultChan <- cropResult{crop: topCrop, err: err}
	}()

	select {
	case <-ctx.Done():
		return CropRegion{}, ctx.Err()
	case result := <-resultChan:
		if result.err != nil {
			return CropRegion{}, fmt.Errorf("finding best crop: %w", result.err)
		}
		bounds := img.Bounds()
		return fitRegion(result.crop.Add(bounds.Min), bounds, ratio)
	}
}

// Encode runs the bounded re-encode loop on an already rendered image.
func (n *Normalizer) Encode(ctx context.Context, img image.Image) (Result, error) {
	return n.encodeBounded(ctx, "", img)
}

// encodeBounded encodes at the initial quality and lowers it by the decrement
// until the output fits the budget. The last step is clamped to the floor; if
// the floor still does not fit, that attempt is returned with BudgetMet false.
func (n *Normalizer) encodeBounded(ctx context.Context, name string, img image.Image) (Result, error) {
	q := permille(n.opts.InitialQuality)
	step := permille(n.opts.QualityDecrement)
	floor := permille(n.opts.QualityFloor)

	b := img.Bounds()
	res := Result{
		ContentType: ContentTypeJPEG,
		Width:       b.Dx(),
		Height:      b.Dy(),
	}

	for {
		if err := checkContext(ctx); err != nil {
			return Result{}, err
		}

		var buf bytes.Buffer
		quality := float64(q) / 1000
		if err := n.encode(&buf, img, codecQuality(q)); err != nil {
			return Result{}, &EncodeError{Name: name, Quality: quality, Err: err}
		}
		if buf.Len() == 0 {
			return Result{}, &EncodeError{Name: name, Quality: quality, Err: errors.New("codec produced no output")}
		}

		res.Data = buf.Bytes()
		res.SizeBytes = buf.Len()
		res.Quality = quality
		res.Attempts = append(res.Attempts, Attempt{Quality: quality, SizeBytes: buf.Len()})

		if buf.Len() <= n.opts.ByteBudget {
			res.BudgetMet = true
			return res, nil
		}

		next := q - step
		if next < floor {
			next = floor
		}
		if q <= floor || codecQuality(next) >= codecQuality(q) {
			return res, nil
		}
		q = next
	}
}

// permille converts a 0..1 quality to integer thousandths so the loop
// schedule is exact.
func permille(q float64) int {
	return int(math.Round(q * 1000))
}

// codecQuality maps thousandths to the 1..100 JPEG quality scale.
func codecQuality(pm int) int {
	return clamp(divRound(pm, 10), 1, 100)
}

// resizer implements the smartcrop.Resizer interface and adds context awareness.
type resizer struct {
	resampler imaging.ResampleFilter
}

// Resize *doesn't* take a context here. The smartcrop.Resizer interface doesn't
// support contexts.
func (r *resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), r.resampler)
}

// resizeWithContext returns nil if ctx is canceled before the resize finishes.
func (r *resizer) resizeWithContext(ctx context.Context, img image.Image, width, height int) image.Image {
	resultChan := make(chan image.Image, 1)

	go func() {
		resultChan <- imaging.Resize(img, width, height, r.resampler)
	}()

	select {
	case <-ctx.Done():
		return nil
	case result := <-resultChan:
		return result
	}
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
