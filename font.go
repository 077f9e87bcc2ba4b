package wxmatrix

// Tiny 3x5 bitmap font covering digits, a handful of symbols and the upper
// case letters needed for clock, temperature, humidity and wind labels.

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

const (
	glyphWidth  = 3
	glyphHeight = 5
	// glyphAdvance is the glyph width plus one column of spacing
	glyphAdvance = glyphWidth + 1
)

// Each row holds 3 bits, the most significant of the three is the leftmost column
var glyphs = map[rune][glyphHeight]uint8{
	'0': {0b111, 0b101, 0b101, 0b101, 0b111},
	'1': {0b010, 0b110, 0b010, 0b010, 0b111},
	'2': {0b111, 0b001, 0b111, 0b100, 0b111},
	'3': {0b111, 0b001, 0b111, 0b001, 0b111},
	'4': {0b101, 0b101, 0b111, 0b001, 0b001},
	'5': {0b111, 0b100, 0b111, 0b001, 0b111},
	'6': {0b111, 0b100, 0b111, 0b101, 0b111},
	'7': {0b111, 0b001, 0b010, 0b010, 0b010},
	'8': {0b111, 0b101, 0b111, 0b101, 0b111},
	'9': {0b111, 0b101, 0b111, 0b001, 0b111},
	'-': {0b000, 0b000, 0b111, 0b000, 0b000},
	'.': {0b000, 0b000, 0b000, 0b000, 0b010},
	':': {0b000, 0b010, 0b000, 0b010, 0b000},
	' ': {0b000, 0b000, 0b000, 0b000, 0b000},
	'A': {0b111, 0b101, 0b111, 0b101, 0b101},
	'B': {0b110, 0b101, 0b110, 0b101, 0b110},
	'C': {0b111, 0b100, 0b100, 0b100, 0b111},
	'D': {0b110, 0b101, 0b101, 0b101, 0b110},
	'E': {0b111, 0b100, 0b110, 0b100, 0b111},
	'F': {0b111, 0b100, 0b110, 0b100, 0b100},
	'H': {0b101, 0b101, 0b111, 0b101, 0b101},
	'I': {0b111, 0b010, 0b010, 0b010, 0b111},
	'L': {0b100, 0b100, 0b100, 0b100, 0b111},
	'M': {0b101, 0b111, 0b101, 0b101, 0b101},
	'N': {0b101, 0b111, 0b111, 0b111, 0b101},
	'O': {0b111, 0b101, 0b101, 0b101, 0b111},
	'R': {0b110, 0b101, 0b110, 0b101, 0b101},
	'S': {0b111, 0b100, 0b111, 0b001, 0b111},
	'T': {0b111, 0b010, 0b010, 0b010, 0b010},
	'U': {0b101, 0b101, 0b101, 0b101, 0b111},
	'V': {0b101, 0b101, 0b101, 0b101, 0b010},
	'W': {0b101, 0b101, 0b101, 0b111, 0b101},
	'Y': {0b101, 0b101, 0b010, 0b010, 0b010},
}

// DrawChar paints a single glyph with its top left corner at (x, y) and returns
// the horizontal advance.  Characters without a glyph advance like a space.
func (c *Canvas) DrawChar(x, y int, ch rune, col color.RGBA) int {
	rows, isPresent := glyphs[ch]
	if !isPresent {
		return glyphAdvance
	}
	for row := 0; row < glyphHeight; row++ {
		bits := rows[row]
		for column := 0; column < glyphWidth; column++ {
			if bits&(1<<uint(glyphWidth-1-column)) != 0 {
				c.Set(x+column, y+row, col)
			}
		}
	}
	return glyphAdvance
}

// TextWidth is the number of columns the text occupies including the trailing
// spacing column
func TextWidth(text string) int {
	return len([]rune(text)) * glyphAdvance
}

// DrawText paints text left to right starting at (x, y)
func (c *Canvas) DrawText(x, y int, text string, col color.RGBA) {
	cursor := x
	for _, ch := range text {
		cursor += c.DrawChar(cursor, y, ch, col)
	}
}

// DrawTextCentered paints text centered horizontally on row y, text wider than
// the display is left aligned
func (c *Canvas) DrawTextCentered(y int, text string, col color.RGBA) {
	c.DrawText(centeredX(c.Width(), text), y, text, col)
}

func centeredX(width int, text string) int {
	w := TextWidth(text)
	if w >= width {
		return 0
	}
	return (width - w) / 2
}

// DrawNumber paints an integer, negative values are drawn as zero unless signed
// is set
func (c *Canvas) DrawNumber(x, y int, value int, col color.RGBA, signed bool) {
	if !signed && value < 0 {
		value = 0
	}
	c.DrawText(x, y, strconv.Itoa(value), col)
}

// DrawFloat paints a reading with the given number of decimals, unavailable
// readings are drawn as "--"
func (c *Canvas) DrawFloat(x, y int, value float64, decimals int, col color.RGBA) {
	c.DrawText(x, y, formatReading(value, decimals), col)
}

func formatReading(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "--"
	}
	return strings.TrimSpace(fmt.Sprintf("%.*f", decimals, value))
}
