package swing

// Direction is the trend direction of a leg.
type Direction string

const (
	Bull Direction = "bull"
	Bear Direction = "bear"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Bull || d == Bear
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Bull {
		return Bear
	}
	return Bull
}

// beyond reports whether a lies strictly further than b in d's trend direction.
func (d Direction) beyond(a, b float64) bool {
	if d == Bull {
		return a > b
	}
	return a < b
}

// excursion is the signed distance from ref to price in d's trend direction.
// Positive means price is beyond ref.
func (d Direction) excursion(ref, price float64) float64 {
	if d == Bull {
		return price - ref
	}
	return ref - price
}

// PricePoint is a price fixed at a bar index.
type PricePoint struct {
	Price float64 `json:"price"`
	Index int64   `json:"bar_index"`
}
