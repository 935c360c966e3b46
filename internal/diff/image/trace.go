package image

import (
	"image"
	"math"
)

// Neighbour offsets, counterclockwise on screen starting east.
var directions = [8]image.Point{
	{1, 0},   // E
	{1, -1},  // NE
	{0, -1},  // N
	{-1, -1}, // NW
	{-1, 0},  // W
	{-1, 1},  // SW
	{0, 1},   // S
	{1, 1},   // SE
}

const west = 4

type binaryImage struct {
	width  int
	height int
	pix    []bool
}

func newBinaryImage(mask *image.Gray) *binaryImage {
	bounds := mask.Bounds()
	b := &binaryImage{
		width:  bounds.Dx(),
		height: bounds.Dy(),
		pix:    make([]bool, bounds.Dx()*bounds.Dy()),
	}
	for y := 0; y < b.height; y++ {
		row := mask.Pix[mask.PixOffset(bounds.Min.X, bounds.Min.Y+y):][:b.width]
		for x, v := range row {
			b.pix[y*b.width+x] = v != 0
		}
	}
	return b
}

func (b *binaryImage) at(p image.Point) bool {
	if p.X < 0 || p.X >= b.width || p.Y < 0 || p.Y >= b.height {
		return false
	}
	return b.pix[p.Y*b.width+p.X]
}

// FindExternalContours returns the outer boundary of every 8-connected region
// of non-zero pixels in mask that is not nested inside another region. Holes
// and regions inside holes are not reported. Points are relative to
// mask.Bounds().Min.
func FindExternalContours(mask *image.Gray) []Contour {
	b := newBinaryImage(mask)
	outside := b.outside()
	visited := make([]bool, len(b.pix))

	var contours []Contour
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			i := y*b.width + x
			if !b.pix[i] || visited[i] {
				continue
			}

			// The first pixel of a region in raster order always has a
			// background pixel to its west. For external regions that pixel
			// is connected to the image frame.
			b.visitRegion(visited, x, y)
			if x == 0 || outside[i-1] {
				contours = append(contours, newContour(b.follow(image.Pt(x, y))))
			}
		}
	}

	return contours
}

// outside marks background pixels 4-connected to the image frame.
func (b *binaryImage) outside() []bool {
	outside := make([]bool, len(b.pix))
	queue := make([]int, 0, 2*(b.width+b.height))

	push := func(x int, y int) {
		i := y*b.width + x
		if !b.pix[i] && !outside[i] {
			outside[i] = true
			queue = append(queue, i)
		}
	}

	for x := 0; x < b.width; x++ {
		push(x, 0)
		push(x, b.height-1)
	}
	for y := 0; y < b.height; y++ {
		push(0, y)
		push(b.width-1, y)
	}

	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		x := i % b.width
		y := i / b.width

		if x > 0 {
			push(x-1, y)
		}
		if x < b.width-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < b.height-1 {
			push(x, y+1)
		}
	}

	return outside
}

func (b *binaryImage) visitRegion(visited []bool, startX int, startY int) {
	queue := []image.Point{{startX, startY}}
	visited[startY*b.width+startX] = true

	for len(queue) > 0 {
		point := queue[0]
		queue = queue[1:]

		for _, d := range directions {
			n := point.Add(d)
			if !b.at(n) {
				continue
			}
			i := n.Y*b.width + n.X
			if !visited[i] {
				visited[i] = true
				queue = append(queue, n)
			}
		}
	}
}

// follow traces the outer border starting at start, whose west neighbour is
// background (Suzuki & Abe, 1985, step 3).
func (b *binaryImage) follow(start image.Point) []image.Point {
	first, found := image.Point{}, false
	for k := 0; k < 8; k++ {
		n := start.Add(directions[(west-k+8)%8])
		if b.at(n) {
			first, found = n, true
			break
		}
	}
	if !found {
		return []image.Point{start}
	}

	var points []image.Point
	previous := first
	current := start
	for {
		from := direction(current, previous)
		var next image.Point
		for k := 1; k <= 8; k++ {
			n := current.Add(directions[(from+k)%8])
			if b.at(n) {
				next = n
				break
			}
		}

		points = append(points, current)
		if next == start && current == first {
			return points
		}
		previous = current
		current = next
	}
}

func direction(from image.Point, to image.Point) int {
	d := to.Sub(from)
	for i, v := range directions {
		if v == d {
			return i
		}
	}
	return west
}

func newContour(points []image.Point) Contour {
	bounds := image.Rectangle{Min: points[0], Max: points[0].Add(image.Pt(1, 1))}
	for _, p := range points[1:] {
		bounds = bounds.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
	}

	return Contour{
		Points: points,
		Area:   polygonArea(points),
		Bounds: bounds,
	}
}

// polygonArea is the shoelace area of the closed polygon through points.
func polygonArea(points []image.Point) float64 {
	if len(points) < 3 {
		return 0
	}

	sum := 0
	for i, p := range points {
		q := points[(i+1)%len(points)]
		sum += p.X*q.Y - q.X*p.Y
	}
	return math.Abs(float64(sum)) / 2
}
