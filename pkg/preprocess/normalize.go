package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var (
	ErrDecode        = errors.New("image could not be decoded")
	ErrInvalidTarget = errors.New("target size must be positive")
)

// DefaultMaxPixels bounds the declared size of an input image (4096 x 4096).
const DefaultMaxPixels = 4096 * 4096

// Tensor holds a normalized single channel image laid out as (Width, Height, 1).
// The first axis walks the columns of the padded image, the second axis walks its
// rows bottom to top.
type Tensor struct {
	Width  int
	Height int
	Data   []float32
}

func (t *Tensor) Shape() []int64 {
	return []int64{int64(t.Width), int64(t.Height), 1}
}

// BatchShape is the shape the model expects, with a leading batch of one.
func (t *Tensor) BatchShape() []int64 {
	return []int64{1, int64(t.Width), int64(t.Height), 1}
}

func (t *Tensor) At(i, j int) float32 {
	return t.Data[i*t.Height+j]
}

// Normalizer turns encoded images into the tensors the recognition model was trained on.
// Images declaring more than MaxPixels pixels are rejected before any pixel is decoded.
type Normalizer struct {
	Width     int
	Height    int
	MaxPixels int64
}

func New(width, height int) *Normalizer {
	return &Normalizer{Width: width, Height: height, MaxPixels: DefaultMaxPixels}
}

func (n *Normalizer) Normalize(raw []byte) (*Tensor, error) {
	return NormalizeWithLimit(raw, n.Width, n.Height, n.MaxPixels)
}

func Normalize(raw []byte, width, height int) (*Tensor, error) {
	return NormalizeWithLimit(raw, width, height, DefaultMaxPixels)
}

// NormalizeWithLimit is Normalize with an explicit pixel cap. A cap of zero or less
// falls back to DefaultMaxPixels.
func NormalizeWithLimit(raw []byte, width, height int, maxPixels int64) (*Tensor, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidTarget, width, height)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	src, err := decode(raw, maxPixels)
	if err != nil {
		return nil, err
	}

	return NormalizeImage(src, width, height)
}

// NormalizeImage runs the geometry steps on an already decoded image.
func NormalizeImage(src image.Image, width, height int) (*Tensor, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidTarget, width, height)
	}

	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}

	gray := imaging.Grayscale(src)
	resizedW, resizedH := FitWithin(bounds.Dx(), bounds.Dy(), width, height)
	if resizedW != gray.Bounds().Dx() || resizedH != gray.Bounds().Dy() {
		gray = imaging.Resize(gray, resizedW, resizedH, imaging.Linear)
	}

	top, _ := SplitPadding(height - resizedH)
	left, _ := SplitPadding(width - resizedW)

	// Zero padding is the initial value of Data. Each pixel of the resized image lands at
	// padded position (row, col) = (top+y, left+x); transposing sends it to (col, row) and
	// mirroring the second axis sends that to (col, height-1-row).
	t := &Tensor{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height),
	}
	for y := 0; y < resizedH; y++ {
		row := top + y
		j := height - 1 - row
		for x := 0; x < resizedW; x++ {
			i := left + x
			// Grayscale output carries the same value in R, G and B.
			v := gray.Pix[y*gray.Stride+x*4]
			t.Data[i*height+j] = float32(v) / 255.0
		}
	}

	return t, nil
}

// FitWithin returns the size of a w0 x h0 image scaled by min(width/w0, height/h0).
// Both results are in [1, width] and [1, height] respectively.
func FitWithin(w0, h0, width, height int) (int, int) {
	scale := math.Min(float64(width)/float64(w0), float64(height)/float64(h0))

	w := clamp(int(math.Round(float64(w0)*scale)), 1, width)
	h := clamp(int(math.Round(float64(h0)*scale)), 1, height)

	return w, h
}

// SplitPadding splits a residual into a leading floor(pad/2) and the trailing remainder.
func SplitPadding(pad int) (int, int) {
	if pad <= 0 {
		return 0, 0
	}
	lead := pad / 2
	return lead, pad - lead
}

func decode(raw []byte, maxPixels int64) (image.Image, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	// The header alone gives the size, so oversized images never allocate a pixel buffer.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return img, nil
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
