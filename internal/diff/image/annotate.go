package image

import (
	"image"
	"image/color"
	"image/draw"
)

const annotateThickness = 3

// Annotate returns a copy of target with the bounding rectangle of every
// contour drawn in red. Contour bounds are relative to target.Bounds().Min.
func Annotate(target image.Image, contours []Contour) *image.RGBA {
	bounds := target.Bounds()
	result := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(result, result.Bounds(), target, bounds.Min, draw.Src)

	rectColor := color.RGBA{R: 255, A: 255}
	canvas := result.Bounds()

	for _, contour := range contours {
		rect := contour.Bounds
		for thickness := 0; thickness < annotateThickness; thickness++ {
			outer := image.Rect(rect.Min.X-thickness, rect.Min.Y-thickness, rect.Max.X+thickness, rect.Max.Y+thickness)

			for x := outer.Min.X; x < outer.Max.X; x++ {
				setIn(result, canvas, x, outer.Min.Y, rectColor)
				setIn(result, canvas, x, outer.Max.Y-1, rectColor)
			}
			for y := outer.Min.Y; y < outer.Max.Y; y++ {
				setIn(result, canvas, outer.Min.X, y, rectColor)
				setIn(result, canvas, outer.Max.X-1, y, rectColor)
			}
		}
	}

	return result
}

func setIn(img *image.RGBA, bounds image.Rectangle, x int, y int, c color.RGBA) {
	if image.Pt(x, y).In(bounds) {
		img.SetRGBA(x, y, c)
	}
}
