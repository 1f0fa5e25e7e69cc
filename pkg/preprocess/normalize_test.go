package preprocess

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func whiteGray(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return img
}

func handwriting(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 90, 24))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(4, 17),
	}
	d.DrawString("Hello")
	return encodePNG(t, img)
}

func TestNormalizeShape(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{name: "same aspect", w: 64, h: 16},
		{name: "tall", w: 10, h: 300},
		{name: "wide", w: 900, h: 20},
		{name: "tiny", w: 1, h: 1},
		{name: "square", w: 50, h: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(encodePNG(t, whiteGray(tt.w, tt.h)), 128, 32)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			shape := got.Shape()
			if shape[0] != 128 || shape[1] != 32 || shape[2] != 1 {
				t.Errorf("Shape() = %v, want [128 32 1]", shape)
			}
			if len(got.Data) != 128*32 {
				t.Errorf("len(Data) = %d, want %d", len(got.Data), 128*32)
			}
			for _, v := range got.Data {
				if v < 0 || v > 1 {
					t.Fatalf("value %v outside [0,1]", v)
				}
			}
		})
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	raw := handwriting(t)

	a, err := Normalize(raw, 128, 32)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	b, err := Normalize(raw, 128, 32)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("Data[%d] differs: %v vs %v", i, a.Data[i], b.Data[i])
		}
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name         string
		w0, h0       int
		wantW, wantH int
	}{
		{name: "exact scale up", w0: 64, h0: 16, wantW: 128, wantH: 32},
		{name: "limited by height", w0: 100, h0: 100, wantW: 32, wantH: 32},
		{name: "limited by width", w0: 1000, h0: 50, wantW: 128, wantH: 6},
		{name: "already fits", w0: 128, h0: 32, wantW: 128, wantH: 32},
		{name: "thin line keeps one row", w0: 5000, h0: 1, wantW: 128, wantH: 1},
		{name: "thin column keeps one col", w0: 1, h0: 5000, wantW: 1, wantH: 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitWithin(tt.w0, tt.h0, 128, 32)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("FitWithin() = %d, %d, want %d, %d", w, h, tt.wantW, tt.wantH)
			}
			if w > 128 || h > 32 {
				t.Errorf("FitWithin() = %d, %d exceeds the box", w, h)
			}
		})
	}
}

func TestSplitPadding(t *testing.T) {
	tests := []struct {
		pad             int
		wantLead, wantT int
	}{
		{pad: 0, wantLead: 0, wantT: 0},
		{pad: 1, wantLead: 0, wantT: 1},
		{pad: 7, wantLead: 3, wantT: 4},
		{pad: 96, wantLead: 48, wantT: 48},
	}
	for _, tt := range tests {
		lead, trail := SplitPadding(tt.pad)
		if lead != tt.wantLead || trail != tt.wantT {
			t.Errorf("SplitPadding(%d) = %d, %d, want %d, %d", tt.pad, lead, trail, tt.wantLead, tt.wantT)
		}
		if lead < 0 || trail < 0 || lead+trail != tt.pad {
			t.Errorf("SplitPadding(%d) = %d, %d does not add up", tt.pad, lead, trail)
		}
	}
}

func TestNormalizeImageLayout(t *testing.T) {
	// A 4x2 target with a 4x1 source: the image keeps its width, gets no row on top
	// and one zero row below, then is transposed and mirrored into a (4, 2) tensor.
	src := image.NewGray(image.Rect(0, 0, 4, 1))
	src.Pix = []uint8{0, 51, 102, 255}

	got, err := NormalizeImage(src, 4, 2)
	if err != nil {
		t.Fatalf("NormalizeImage() error = %v", err)
	}

	// Padded rows: row 0 is the source, row 1 is zero. Tensor[i][j] = padded[1-j][i].
	want := [][]float32{
		{0, 0},
		{0, 51.0 / 255},
		{0, 102.0 / 255},
		{0, 1},
	}
	for i := range want {
		for j := range want[i] {
			if got.At(i, j) != want[i][j] {
				t.Errorf("At(%d, %d) = %v, want %v", i, j, got.At(i, j), want[i][j])
			}
		}
	}
}

func TestNormalizePadsSymmetrically(t *testing.T) {
	// A white square fits as 32x32 in the middle of 128x32 with 48 zero columns on each side.
	got, err := Normalize(encodePNG(t, whiteGray(40, 40)), 128, 32)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	for i := 0; i < 128; i++ {
		inside := i >= 48 && i < 80
		for j := 0; j < 32; j++ {
			v := got.At(i, j)
			if inside && v != 1 {
				t.Fatalf("At(%d, %d) = %v, want 1", i, j, v)
			}
			if !inside && v != 0 {
				t.Fatalf("At(%d, %d) = %v, want 0", i, j, v)
			}
		}
	}
}

func TestNormalizeAcceptsJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, whiteGray(60, 20), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	if _, err := Normalize(buf.Bytes(), 128, 32); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
}

// withDeclaredSize rewrites the IHDR chunk of a PNG so its header claims w x h pixels.
// The pixel data is left alone, so only the header is trustworthy.
func withDeclaredSize(t *testing.T, raw []byte, w, h uint32) []byte {
	t.Helper()

	out := append([]byte(nil), raw...)
	if len(out) < 33 || string(out[12:16]) != "IHDR" {
		t.Fatal("not a PNG with a leading IHDR chunk")
	}
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestNormalizeErrors(t *testing.T) {
	valid := encodePNG(t, whiteGray(8, 8))

	tests := []struct {
		name    string
		raw     []byte
		w, h    int
		wantErr error
	}{
		{name: "empty", raw: nil, w: 128, h: 32, wantErr: ErrDecode},
		{name: "truncated header", raw: valid[:12], w: 128, h: 32, wantErr: ErrDecode},
		{name: "not an image", raw: []byte("hello, world"), w: 128, h: 32, wantErr: ErrDecode},
		{name: "zero target", raw: valid, w: 0, h: 32, wantErr: ErrInvalidTarget},
		{name: "declared size over pixel cap", raw: withDeclaredSize(t, valid, 12000, 12000), w: 128, h: 32, wantErr: ErrDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw, tt.w, tt.h)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Normalize() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizerMaxPixels(t *testing.T) {
	raw := encodePNG(t, whiteGray(8, 8))

	n := New(128, 32)
	if n.MaxPixels != DefaultMaxPixels {
		t.Errorf("MaxPixels = %d, want %d", n.MaxPixels, DefaultMaxPixels)
	}

	n.MaxPixels = 64
	if _, err := n.Normalize(raw); err != nil {
		t.Fatalf("Normalize() at the cap error = %v", err)
	}

	n.MaxPixels = 63
	if _, err := n.Normalize(raw); !errors.Is(err, ErrDecode) {
		t.Errorf("Normalize() over the cap error = %v, want %v", err, ErrDecode)
	}
}
