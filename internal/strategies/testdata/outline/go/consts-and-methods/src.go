package shapes

import "math"

const (
	Pi2   = 2 * math.Pi
	scale = 3
)

var Registry = map[string]Shape{}

type Shape interface {
	Area() float64
}

type Circle struct {
	R float64
}

func (c Circle) Area() float64 {
	return math.Pi * c.R * c.R
}

func New(r float64) Circle {
	type local struct{}
	return Circle{R: r}
}
