package pipeline

import "errors"

// Stage errors. Failures are wrapped as fmt.Errorf("%w: %w", stage, cause)
// so both the stage and the underlying cause match errors.Is.
var (
	ErrDecode    = errors.New("decode failed")
	ErrResize    = errors.New("resize failed")
	ErrDetection = errors.New("detection failed")
	ErrPlan      = errors.New("crop planning failed")
	ErrEncode    = errors.New("encode failed")
	ErrUpload    = errors.New("upload failed")
)
