package unknowns

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ErrInvalidBox is returned for bounding boxes that cannot describe a face
// region (negative origin or non-positive size).
var ErrInvalidBox = errors.New("unknowns: invalid bounding box")

// ClampBox validates a detector bounding box [x, y, w, h] against the frame
// dimensions and clamps it to the frame. Boxes with a negative origin or
// non-positive size are rejected; boxes merely extending past the frame edge
// are trimmed.
func ClampBox(box [4]int, frameWidth, frameHeight int) (image.Rectangle, error) {
	x, y, w, h := box[0], box[1], box[2], box[3]
	if x < 0 || y < 0 || w <= 0 || h <= 0 {
		return image.Rectangle{}, fmt.Errorf("%w: [%d %d %d %d]", ErrInvalidBox, x, y, w, h)
	}
	if x >= frameWidth || y >= frameHeight {
		return image.Rectangle{}, fmt.Errorf("%w: origin outside %dx%d frame", ErrInvalidBox, frameWidth, frameHeight)
	}

	rect := image.Rect(x, y, x+w, y+h).Intersect(image.Rect(0, 0, frameWidth, frameHeight))
	if rect.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: empty after clamping", ErrInvalidBox)
	}
	return rect, nil
}

// CropJPEG extracts the bounding box region from the frame and returns it
// JPEG-encoded, along with the clamped rectangle actually used.
func CropJPEG(frame gocv.Mat, box [4]int) ([]byte, image.Rectangle, error) {
	rect, err := ClampBox(box, frame.Cols(), frame.Rows())
	if err != nil {
		return nil, image.Rectangle{}, err
	}

	region := frame.Region(rect)
	defer region.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, region)
	if err != nil {
		return nil, image.Rectangle{}, fmt.Errorf("failed to encode face crop: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, rect, nil
}
