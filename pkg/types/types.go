package types

import (
	"image"
	"math"
)

// Banner geometry shared by the whole process
const (
	TargetWidth = 542.0
	WidthRatio  = 16.0
	HeightRatio = 9.0
)

// Profile is the fixed output geometry. It is a value type with unexported
// fields so a profile cannot change once built.
type Profile struct {
	width       float64
	heightRatio float64
	height      float64
}

// DefaultProfile is 542x304 (16:9)
var DefaultProfile = NewProfile(TargetWidth, HeightRatio/WidthRatio)

// NewProfile builds a profile from a target width and a height/width ratio.
// The height is floored to whole pixels.
func NewProfile(width, heightRatio float64) Profile {
	return Profile{
		width:       width,
		heightRatio: heightRatio,
		height:      math.Floor(width * heightRatio),
	}
}

// Width returns the target width in pixels
func (p Profile) Width() float64 { return p.width }

// Height returns the target height in pixels
func (p Profile) Height() float64 { return p.height }

// HeightRatio returns the target height/width ratio
func (p Profile) HeightRatio() float64 { return p.heightRatio }

// IsZero reports whether the profile was never initialised
func (p Profile) IsZero() bool { return p.width == 0 }

// Axis selects a crop direction
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

func (a Axis) String() string {
	if a == AxisX {
		return "x"
	}
	return "y"
}

// Region is an axis-aligned region of interest in pixel coordinates
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Score  float64 `json:"score"`
}

// Center returns the center point of the region
func (r Region) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// CenterAlong returns the center coordinate on a single axis
func (r Region) CenterAlong(axis Axis) float64 {
	cx, cy := r.Center()
	if axis == AxisX {
		return cx
	}
	return cy
}

// Rect returns the region as an integer rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.Width)),
		int(math.Round(r.Y+r.Height)),
	)
}

// CropWindow is the rectangle cut out of the source image
type CropWindow struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect returns the window as an integer rectangle. Width and height are
// whole pixels already, only the origin needs rounding.
func (w CropWindow) Rect() image.Rectangle {
	x := int(math.Round(w.X))
	y := int(math.Round(w.Y))
	return image.Rect(x, y, x+int(w.Width), y+int(w.Height))
}

// Within reports whether the window lies inside a sourceWidth x sourceHeight image
func (w CropWindow) Within(sourceWidth, sourceHeight float64) bool {
	return w.X >= 0 && w.Y >= 0 &&
		w.X+w.Width <= sourceWidth &&
		w.Y+w.Height <= sourceHeight
}

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ToRegion scales a normalized box onto an image of the given size
func (b Box) ToRegion(width, height int, score float64) Region {
	return Region{
		X:      b.X * float64(width),
		Y:      b.Y * float64(height),
		Width:  b.W * float64(width),
		Height: b.H * float64(height),
		Score:  score,
	}
}

// Primary represents the primary subject reported by a vision model
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// AnalysisResult contains the answer of a vision model
type AnalysisResult struct {
	Primary     Primary   `json:"primary"`
	Subjects    []Primary `json:"subjects"`
	Description string    `json:"description"`
}
