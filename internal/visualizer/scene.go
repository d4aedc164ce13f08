package visualizer

import (
	"fmt"
	"image"
	"image/color"
	"pipetter/internal/deck"
)

// Palette.
var (
	colorDeck          = mustHex("#F5FAFC")
	colorPlateCarrier  = mustHex("#5C6C8F")
	colorTipCarrier    = mustHex("#64405D")
	colorTroughCarrier = mustHex("#756793")
	colorPlate         = mustHex("#3A3A3A")
	colorWell          = mustHex("#F5FAFC")
	colorTipRack       = mustHex("#8F5C85")
	colorContainer     = mustHex("#E0EAEE")
	colorTip           = mustHex("#40CDA1")
	colorNoTip         = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
)

var liquidPalette = []color.RGBA{
	mustHex("#FF5733"), mustHex("#33FF57"), mustHex("#3357FF"), mustHex("#FF33F5"),
	mustHex("#FFD433"), mustHex("#33FFF5"), mustHex("#D433FF"), mustHex("#FF8F33"),
	mustHex("#8FFF33"), mustHex("#338FFF"), mustHex("#FF33A1"), mustHex("#A1FF33"),
}

const (
	sceneMargin = 12
	sceneHeader = 28 // label band above the deck
	slotPad     = 4
)

// shape is one filled rectangle or inscribed disc. Text is drawn only by renderers
// that can draw text.
type shape struct {
	Rect   image.Rectangle
	Fill   color.RGBA
	Circle bool
	Text   string
}

// liquidColors assigns palette colors to liquids in first-seen order and keeps them
// stable across frames.
type liquidColors struct {
	assigned map[string]color.RGBA
}

func newLiquidColors() *liquidColors {
	return &liquidColors{assigned: make(map[string]color.RGBA)}
}

func (l *liquidColors) get(liquid string) color.RGBA {
	if c, ok := l.assigned[liquid]; ok {
		return c
	}
	c := liquidPalette[len(l.assigned)%len(liquidPalette)]
	l.assigned[liquid] = c
	return c
}

// buildScene lays the deck out on a w×h canvas, one column per rail.
func buildScene(s deck.Snapshot, w, h int, colors *liquidColors) []shape {
	shapes := []shape{{Rect: image.Rect(0, 0, w, h), Fill: colorDeck}}

	for _, name := range s.Liquids() {
		colors.get(name)
	}

	rails := max(s.Rails, 1)
	railW := max((w-2*sceneMargin)/rails, 1)
	top, bottom := sceneMargin+sceneHeader, h-sceneMargin

	for _, c := range s.Carriers {
		x0 := sceneMargin + (c.Rail-1)*railW
		cr := image.Rect(x0, top, x0+c.Width*railW, bottom)
		shapes = append(shapes, shape{Rect: cr, Fill: carrierColor(c.Kind), Text: c.Name})

		n := len(c.Slots)
		if n == 0 {
			continue
		}
		slotH := max((cr.Dy()-slotPad*(n+1))/n, 1)
		for i, slot := range c.Slots {
			// Slot 0 sits at the front of the carrier, drawn at the bottom.
			y1 := cr.Max.Y - slotPad - i*(slotH+slotPad)
			sr := image.Rect(cr.Min.X+slotPad, y1-slotH, cr.Max.X-slotPad, y1)
			shapes = append(shapes, slotShapes(slot, sr, colors)...)
		}
	}
	return shapes
}

func carrierColor(k deck.Kind) color.RGBA {
	switch k {
	case deck.KindPlateCarrier:
		return colorPlateCarrier
	case deck.KindTipCarrier:
		return colorTipCarrier
	default:
		return colorTroughCarrier
	}
}

func slotShapes(slot deck.SlotSnapshot, r image.Rectangle, colors *liquidColors) []shape {
	switch {
	case slot.Trough != nil:
		t := slot.Trough
		out := []shape{{Rect: r, Fill: colorContainer, Text: troughText(slot.Name, t)}}
		if t.MaxVolume > 0 && t.Volume > 0 {
			frac := min(t.Volume/t.MaxVolume, 1)
			level := max(int(frac*float64(r.Dy())), 1)
			out = append(out, shape{Rect: image.Rect(r.Min.X, r.Max.Y-level, r.Max.X, r.Max.Y), Fill: colors.get(t.Liquid)})
		}
		return out

	case slot.TipRack != nil:
		tr := slot.TipRack
		out := []shape{{Rect: r, Fill: colorTipRack, Text: slot.Name}}
		return append(out, gridShapes(r, tr.Rows, tr.Columns, func(i int) color.RGBA {
			if tr.Tips[i] {
				return colorTip
			}
			return colorNoTip
		})...)

	case slot.Plate != nil:
		p := slot.Plate
		out := []shape{{Rect: r, Fill: colorPlate, Text: slot.Name}}
		return append(out, gridShapes(r, p.Rows, p.Columns, func(i int) color.RGBA {
			if p.Volumes[i] > 0 {
				return colors.get(p.Liquids[i])
			}
			return colorWell
		})...)
	}
	return nil
}

// gridShapes places rows×cols discs inside r, row-major.
func gridShapes(r image.Rectangle, rows, cols int, fill func(i int) color.RGBA) []shape {
	if rows <= 0 || cols <= 0 {
		return nil
	}
	cellW, cellH := r.Dx()/cols, r.Dy()/rows
	d := min(cellW, cellH) - 1
	if d < 1 {
		return nil
	}
	out := make([]shape, 0, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			x := r.Min.X + col*cellW + (cellW-d)/2
			y := r.Min.Y + row*cellH + (cellH-d)/2
			out = append(out, shape{Rect: image.Rect(x, y, x+d, y+d), Fill: fill(row*cols + col), Circle: true})
		}
	}
	return out
}

func troughText(name string, t *deck.TroughState) string {
	if t.Volume <= 0 {
		return name
	}
	return fmt.Sprintf("%s %.0fuL", name, t.Volume)
}

func mustHex(s string) color.RGBA {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		panic(fmt.Sprintf("bad color %q: %v", s, err))
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xFF}
}

func cssColor(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}
