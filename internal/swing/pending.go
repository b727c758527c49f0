package swing

// PendingOrigins holds at most one unconfirmed origin per direction: the low
// waiting to start the next bull leg and the high waiting to start the next
// bear leg.
type PendingOrigins struct {
	Bull *PricePoint `json:"bull,omitempty"`
	Bear *PricePoint `json:"bear,omitempty"`
}

// Get returns the pending origin for d, or nil.
func (p *PendingOrigins) Get(d Direction) *PricePoint {
	if d == Bull {
		return p.Bull
	}
	return p.Bear
}

// offer records pt unless the existing pending origin is already more extreme
// (lower for bull, higher for bear). Ties keep the earlier point.
func (p *PendingOrigins) offer(d Direction, pt PricePoint) {
	cur := p.Get(d)
	// a bull origin wants the lowest low, i.e. beyond in the bear direction
	if cur != nil && !d.Opposite().beyond(pt.Price, cur.Price) {
		return
	}
	v := pt
	if d == Bull {
		p.Bull = &v
	} else {
		p.Bear = &v
	}
}

func (p *PendingOrigins) clear(d Direction) {
	if d == Bull {
		p.Bull = nil
	} else {
		p.Bear = nil
	}
}

func (p PendingOrigins) clone() PendingOrigins {
	var c PendingOrigins
	if p.Bull != nil {
		v := *p.Bull
		c.Bull = &v
	}
	if p.Bear != nil {
		v := *p.Bear
		c.Bear = &v
	}
	return c
}
