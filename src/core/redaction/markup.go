package redaction

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"sort"

	"redactmail-server-go/src/core/utils"

	"golang.org/x/image/bmp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/tiff"

	_ "golang.org/x/image/webp" // register WEBP decoder
)

const (
	boxPadding    = 2
	minLabelWidth = 40
)

// MarkupEngine draws opaque redaction blocks over sensitive fragments.
// Bounding boxes are used exactly as OCR reported them, apart from the
// small padding that keeps glyph edges covered.
type MarkupEngine struct {
	logger *utils.TaggedLogger
}

func NewMarkupEngine(logger *utils.Logger) *MarkupEngine {
	return &MarkupEngine{logger: logger.WithTag("markup")}
}

// Redact returns a copy of imageData with every sensitive fragment covered
// by a filled black rectangle, the category placeholder centered in white
// when the box is wide enough. The caller's bytes are never mutated. With
// no sensitive fragments the copy is byte-identical to the input.
func (m *MarkupEngine) Redact(imageData []byte, fragments []ClassifiedFragment, settings Settings) ([]byte, error) {
	sensitive := make([]ClassifiedFragment, 0, len(fragments))
	for _, frag := range fragments {
		if frag.Sensitive {
			sensitive = append(sensitive, frag)
		}
	}
	if len(sensitive) == 0 {
		return bytes.Clone(imageData), nil
	}

	src, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %v", err)
	}

	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)

	merged := mergeAdjacent(sensitive)
	for _, box := range merged {
		m.drawBox(canvas, box, settings)
	}
	m.logger.Debug(fmt.Sprintf("drew %d redaction boxes (%d fragments) on %s image", len(merged), len(sensitive), format))

	return encodeImage(canvas, format)
}

// drawBox fills the padded bounding box and centers the placeholder label.
func (m *MarkupEngine) drawBox(canvas *image.RGBA, frag ClassifiedFragment, settings Settings) {
	bounds := canvas.Bounds()
	x1 := maxInt(bounds.Min.X, frag.X-boxPadding)
	y1 := maxInt(bounds.Min.Y, frag.Y-boxPadding)
	x2 := minInt(bounds.Max.X, frag.X+frag.Width+boxPadding)
	y2 := minInt(bounds.Max.Y, frag.Y+frag.Height+boxPadding)
	if x2 <= x1 || y2 <= y1 {
		return
	}

	rect := image.Rect(x1, y1, x2, y2)
	draw.Draw(canvas, rect, image.NewUniform(color.Black), image.Point{}, draw.Src)

	if frag.Width <= minLabelWidth {
		return
	}

	label := settings.Placeholder(frag.Category)
	face := basicfont.Face7x13
	labelWidth := font.MeasureString(face, label).Ceil()
	labelX := x1 + (x2-x1-labelWidth)/2
	labelY := y1 + (y2-y1+face.Ascent-face.Descent)/2
	if labelX < x1 || labelY > y2 {
		return
	}

	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(labelX, labelY),
	}
	drawer.DrawString(label)
}

// mergeAdjacent joins same-category boxes that sit on the same visual line
// close to each other, so values split across OCR word boxes (phone
// numbers, first/last names) get one continuous block.
func mergeAdjacent(boxes []ClassifiedFragment) []ClassifiedFragment {
	if len(boxes) == 0 {
		return nil
	}

	sorted := make([]ClassifiedFragment, len(boxes))
	copy(sorted, boxes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y < sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var merged []ClassifiedFragment
	group := []ClassifiedFragment{sorted[0]}

	for _, box := range sorted[1:] {
		prev := group[len(group)-1]
		yDiff := absInt(box.Y - prev.Y)
		xGap := box.X - (prev.X + prev.Width)

		sameLine := yDiff < prev.Height*6/10
		if sameLine && xGap >= 0 && xGap < maxGapFor(prev.Category) && box.Category == prev.Category {
			group = append(group, box)
			continue
		}
		merged = append(merged, mergeGroup(group))
		group = []ClassifiedFragment{box}
	}
	merged = append(merged, mergeGroup(group))
	return merged
}

// maxGapFor widens the merge distance for categories whose values tend to
// span several boxes. First and last names sit far apart, split numbers
// close together.
func maxGapFor(cat Category) int {
	switch cat {
	case CategoryName:
		return 100
	case CategoryPhone, CategoryCreditCard:
		return 15
	default:
		return 30
	}
}

func mergeGroup(group []ClassifiedFragment) ClassifiedFragment {
	if len(group) == 1 {
		return group[0]
	}

	minX, minY := group[0].X, group[0].Y
	maxX := group[0].X + group[0].Width
	maxY := group[0].Y + group[0].Height
	texts := make([]string, len(group))
	for i, box := range group {
		texts[i] = box.Text
		minX = minInt(minX, box.X)
		minY = minInt(minY, box.Y)
		maxX = maxInt(maxX, box.X+box.Width)
		maxY = maxInt(maxY, box.Y+box.Height)
	}

	out := group[0]
	out.Text = joinTexts(texts)
	out.X = minX
	out.Y = minY
	out.Width = maxX - minX
	out.Height = maxY - minY
	return out
}

func joinTexts(texts []string) string {
	var b bytes.Buffer
	for i, t := range texts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t)
	}
	return b.String()
}

// encodeImage re-encodes in the source format. WEBP has no stdlib or
// x/image encoder, so redacted WEBP input comes back as PNG.
func encodeImage(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	case "gif":
		err = gif.Encode(&buf, img, nil)
	case "bmp":
		err = bmp.Encode(&buf, img)
	case "tiff":
		err = tiff.Encode(&buf, img, nil)
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s image: %v", format, err)
	}
	return buf.Bytes(), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func absInt(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
