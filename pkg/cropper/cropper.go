package cropper

import (
	"errors"
	"fmt"

	"github.com/menta2k/banner-cropper/pkg/analyzer"
	"github.com/menta2k/banner-cropper/pkg/types"
)

// ErrDegenerate is returned when the source cannot hold a full target window.
// Eligible images never reach it.
var ErrDegenerate = errors.New("source smaller than crop window")

// CoordinatePolicy tells the planner which space detected regions are in
type CoordinatePolicy int

const (
	// ScaleToSource rescales region centers from the detection input onto
	// the source before planning.
	ScaleToSource CoordinatePolicy = iota
	// DetectionSpace uses region centers as reported by the detector, even
	// when the detector saw a downscaled copy.
	DetectionSpace
)

// ParseCoordinatePolicy maps a config value onto a policy
func ParseCoordinatePolicy(s string) (CoordinatePolicy, error) {
	switch s {
	case "", "source":
		return ScaleToSource, nil
	case "detection":
		return DetectionSpace, nil
	}
	return ScaleToSource, fmt.Errorf("unknown coordinate policy: %s", s)
}

func (p CoordinatePolicy) String() string {
	if p == DetectionSpace {
		return "detection"
	}
	return "source"
}

// Planner computes banner crop windows. It holds no state besides the
// profile and is safe for concurrent use.
type Planner struct {
	profile types.Profile
}

// New creates a new Planner for the default banner profile
func New() *Planner {
	return &Planner{profile: types.DefaultProfile}
}

// NewWithProfile creates a new Planner for a custom profile
func NewWithProfile(profile types.Profile) *Planner {
	if profile.IsZero() {
		profile = types.DefaultProfile
	}
	return &Planner{profile: profile}
}

// Profile returns the target geometry
func (p *Planner) Profile() types.Profile {
	return p.profile
}

// Axis returns the axis that will be cropped for an image. Panoramic images
// lose width, everything else loses height.
func (p *Planner) Axis(m analyzer.Metrics) types.Axis {
	if m.Panoramic {
		return types.AxisX
	}
	return types.AxisY
}

// Plan returns the crop window for an image with the given metrics and
// regions, all in the same coordinate space. Without regions a panoramic
// image is centered horizontally and any other image is cut from the top.
func (p *Planner) Plan(m analyzer.Metrics, regions []types.Region) (types.CropWindow, error) {
	width, height := p.profile.Width(), p.profile.Height()
	if m.Width < width || m.Height < height {
		return types.CropWindow{}, fmt.Errorf("%w: %.0fx%.0f < %.0fx%.0f",
			ErrDegenerate, m.Width, m.Height, width, height)
	}

	axis := p.Axis(m)

	var center, cropDimension, constrainedDimension float64
	if axis == types.AxisX {
		center = m.Width / 2
		cropDimension = width
		constrainedDimension = m.Width
	} else {
		center = 0
		cropDimension = height
		constrainedDimension = m.Height
	}

	if len(regions) > 0 {
		center = Centroid(regions, axis)
	}

	point := clampOrigin(center, cropDimension, constrainedDimension)

	window := types.CropWindow{Width: width, Height: height}
	if axis == types.AxisX {
		window.X = point
	} else {
		window.Y = point
	}
	return window, nil
}

// Centroid is the unweighted mean of region centers along one axis.
// Region size and score do not matter.
func Centroid(regions []types.Region, axis types.Axis) float64 {
	if len(regions) == 0 {
		return 0
	}
	var sum float64
	for _, r := range regions {
		sum += r.CenterAlong(axis)
	}
	return sum / float64(len(regions))
}

// ScaleRegions maps regions found on a fromW x fromH image onto a toW x toH image
func ScaleRegions(regions []types.Region, fromW, fromH, toW, toH float64) []types.Region {
	if len(regions) == 0 || fromW <= 0 || fromH <= 0 {
		return regions
	}
	sx, sy := toW/fromW, toH/fromH
	out := make([]types.Region, len(regions))
	for i, r := range regions {
		out[i] = types.Region{
			X:      r.X * sx,
			Y:      r.Y * sy,
			Width:  r.Width * sx,
			Height: r.Height * sy,
			Score:  r.Score,
		}
	}
	return out
}

// clampOrigin centers a window of size crop on center and pushes it back
// inside [0, bound].
func clampOrigin(center, crop, bound float64) float64 {
	point := center - crop/2
	switch {
	case point <= 0:
		return 0
	case point+crop > bound:
		return bound - crop
	default:
		return point
	}
}
