package node

// LUTSize is the number of entries in a per-channel curves lookup table.
const LUTSize = 255

// bezierSteps is the tabulation resolution used to invert x(t).
const bezierSteps = 256

// Bezier is a cubic curve from (0,0) to (1,1) with two free control points.
type Bezier struct {
	X1 float64 `json:"x1" validate:"gte=0,lte=1"`
	Y1 float64 `json:"y1" validate:"gte=0,lte=1"`
	X2 float64 `json:"x2" validate:"gte=0,lte=1"`
	Y2 float64 `json:"y2" validate:"gte=0,lte=1"`
}

// IdentityBezier has collinear control points, so y(x) = x.
var IdentityBezier = Bezier{X1: 0.25, Y1: 0.25, X2: 0.75, Y2: 0.75}

func cubic(p1, p2, t float64) float64 {
	u := 1 - t
	return 3*u*u*t*p1 + 3*u*t*t*p2 + t*t*t
}

// Value returns y for the given x in [0, 1]. The curve is tabulated and
// x(t) is inverted by linear interpolation between samples.
func (b Bezier) Value(x float64) float64 {
	x = clamp01(x)
	prevX, prevY := 0.0, 0.0
	for i := 1; i <= bezierSteps; i++ {
		t := float64(i) / bezierSteps
		cx, cy := cubic(b.X1, b.X2, t), cubic(b.Y1, b.Y2, t)
		if cx >= x {
			if cx == prevX {
				return clamp01(cy)
			}
			f := (x - prevX) / (cx - prevX)
			return clamp01(prevY + f*(cy-prevY))
		}
		prevX, prevY = cx, cy
	}
	return 1
}

// LUT maps normalized channel values through a curve. Entry i holds the
// output for input i/(LUTSize-1).
type LUT [LUTSize]float64

// Table builds the lookup table for b.
func (b Bezier) Table() LUT {
	var lut LUT
	for i := range lut {
		lut[i] = b.Value(float64(i) / (LUTSize - 1))
	}
	return lut
}

// Lookup maps a byte channel value through the table with linear
// interpolation between entries.
func (l *LUT) Lookup(v uint8) float64 {
	pos := float64(v) / 255 * (LUTSize - 1)
	i := int(pos)
	if i >= LUTSize-1 {
		return l[LUTSize-1]
	}
	f := pos - float64(i)
	return l[i] + f*(l[i+1]-l[i])
}

// Tables builds the four channel tables, in RGBA order.
func (p CurvesParams) Tables() [4]LUT {
	return [4]LUT{p.Red.Table(), p.Green.Table(), p.Blue.Table(), p.Alpha.Table()}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
