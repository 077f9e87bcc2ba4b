package wxmatrix

import (
	. "gopkg.in/check.v1"

	"github.com/TeamNorCal/wxmatrix/model"
)

type FontSuite struct {
	canvas *Canvas
}

var _ = Suite(&FontSuite{})

var white = rgb(255, 255, 255)

func (s *FontSuite) SetUpTest(c *C) {
	cfg := model.DefaultMatrixConfig()
	cfg.Serpentine = false
	s.canvas = NewCanvas(cfg)
}

func (s *FontSuite) lit() (count int) {
	for _, px := range s.canvas.Pixels() {
		if px != black {
			count++
		}
	}
	return count
}

func (s *FontSuite) TestAdvance(c *C) {
	c.Check(s.canvas.DrawChar(0, 0, '8', white), Equals, 4)
	c.Check(s.lit(), Equals, 13)

	s.canvas.Clear()
	c.Check(s.canvas.DrawChar(0, 0, 'z', white), Equals, 4)
	c.Check(s.canvas.DrawChar(0, 0, '°', white), Equals, 4)
	c.Check(s.lit(), Equals, 0)
}

func (s *FontSuite) TestTextWidth(c *C) {
	c.Check(TextWidth(""), Equals, 0)
	c.Check(TextWidth("12:34"), Equals, 20)
	c.Check(TextWidth("NO FC"), Equals, 20)
}

func (s *FontSuite) TestDrawText(c *C) {
	s.canvas.DrawText(0, 0, "1-", white)
	// '1' top row is the middle column only, '-' lights the middle row
	c.Check(s.canvas.At(1, 0), Equals, white)
	c.Check(s.canvas.At(0, 0), Equals, black)
	c.Check(s.canvas.At(4, 2), Equals, white)
	c.Check(s.canvas.At(6, 2), Equals, white)
	c.Check(s.canvas.At(7, 2), Equals, black)
}

func (s *FontSuite) TestCentered(c *C) {
	c.Check(centeredX(32, "12:34"), Equals, 6)
	c.Check(centeredX(32, "12:34:56"), Equals, 0)
	c.Check(centeredX(8, "12:34"), Equals, 0)

	// Wider than the display falls back to left aligned
	s.canvas.DrawTextCentered(0, "888888888", white)
	c.Check(s.canvas.At(0, 0), Equals, white)
}

func (s *FontSuite) TestClipping(c *C) {
	s.canvas.DrawText(30, 6, "88", white)
	s.canvas.DrawText(-2, -2, "8", white)
	c.Check(s.canvas.At(30, 7), Equals, white)
	c.Check(s.canvas.At(31, 7), Equals, black)
	c.Check(s.canvas.At(0, 0), Equals, white)
}

func (s *FontSuite) TestReadings(c *C) {
	c.Check(formatReading(model.NaN(), 0), Equals, "--")
	c.Check(formatReading(21.6, 0), Equals, "22")
	c.Check(formatReading(3.26, 1), Equals, "3.3")
	c.Check(formatReading(-4, 0), Equals, "-4")
}
