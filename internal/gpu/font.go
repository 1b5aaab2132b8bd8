package gpu

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Printable ASCII is laid out row-major in a grid of fixed-size cells.
const (
	firstGlyph   = ' '
	lastGlyph    = '~'
	atlasColumns = 16
)

// FontAtlas is the overlay font texture exposed to presets through
// SampleFontLocation.
type FontAtlas struct {
	*Target
	Cell image.Point
}

// RasterizeFont draws printable ASCII with face into an RGBA grid and
// returns the image and its cell size. Glyphs are white with coverage in
// alpha.
func RasterizeFont(face font.Face) (*image.RGBA, image.Point) {
	m := face.Metrics()
	adv, _ := face.GlyphAdvance('M')
	cell := image.Pt(adv.Ceil(), m.Height.Ceil())

	n := int(lastGlyph-firstGlyph) + 1
	rows := (n + atlasColumns - 1) / atlasColumns
	img := image.NewRGBA(image.Rect(0, 0, cell.X*atlasColumns, cell.Y*rows))
	draw.Draw(img, img.Bounds(), image.Transparent, image.Point{}, draw.Src)

	d := font.Drawer{Dst: img, Src: image.White, Face: face}
	for r := firstGlyph; r <= lastGlyph; r++ {
		i := int(r - firstGlyph)
		x := (i % atlasColumns) * cell.X
		y := (i / atlasColumns) * cell.Y
		d.Dot = fixed.P(x, y+m.Ascent.Ceil())
		d.DrawString(string(r))
	}
	return img, cell
}

// GlyphRect returns the atlas cell of r.
func GlyphRect(r rune, cell image.Point) (image.Rectangle, bool) {
	if r < firstGlyph || r > lastGlyph {
		return image.Rectangle{}, false
	}
	i := int(r - firstGlyph)
	origin := image.Pt((i%atlasColumns)*cell.X, (i/atlasColumns)*cell.Y)
	return image.Rectangle{Min: origin, Max: origin.Add(cell)}, true
}

// NewFontAtlas rasterizes the 7x13 fixed font and uploads it.
func NewFontAtlas(device hal.Device, queue hal.Queue) (*FontAtlas, error) {
	img, cell := RasterizeFont(basicfont.Face7x13)
	w, h := uint32(img.Rect.Dx()), uint32(img.Rect.Dy())

	t, err := NewTarget(device, TargetDescriptor{
		Label:  "gxfx_font",
		Width:  w,
		Height: h,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	err = queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.Texture, Aspect: gputypes.TextureAspectAll},
		img.Pix,
		&hal.ImageDataLayout{BytesPerRow: uint32(img.Stride), RowsPerImage: h},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	if err != nil {
		t.Destroy(device)
		return nil, fmt.Errorf("upload font atlas: %w", err)
	}
	slogger().Debug("gpu: font atlas uploaded", "width", w, "height", h)
	return &FontAtlas{Target: t, Cell: cell}, nil
}
