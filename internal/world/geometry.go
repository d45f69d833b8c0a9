package world

// Vec2 is a continuous world-space position.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Cell is an integer grid coordinate. Equality is by value.
type Cell struct {
	GX int `json:"gx"`
	GY int `json:"gy"`
}

// Clamp limits value to the range [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
