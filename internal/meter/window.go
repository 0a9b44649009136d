package meter

// Point is one chart point in the rolling window.
type Point struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// RollingWindow keeps the most recent chart points in arrival order, evicting
// the oldest once capacity is reached. Not safe for concurrent use; the
// owning Session serializes access.
type RollingWindow struct {
	points   []Point
	capacity int
}

// NewRollingWindow creates a window holding at most capacity points.
func NewRollingWindow(capacity int) *RollingWindow {
	return &RollingWindow{
		points:   make([]Point, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a point, dropping the oldest if the window is full.
func (w *RollingWindow) Push(p Point) {
	if len(w.points) >= w.capacity {
		copy(w.points, w.points[1:])
		w.points = w.points[:len(w.points)-1]
	}
	w.points = append(w.points, p)
}

// Points returns a copy of the window contents, oldest first.
func (w *RollingWindow) Points() []Point {
	out := make([]Point, len(w.points))
	copy(out, w.points)
	return out
}

// Len returns the number of points currently held.
func (w *RollingWindow) Len() int {
	return len(w.points)
}

// Capacity returns the maximum number of points the window holds.
func (w *RollingWindow) Capacity() int {
	return w.capacity
}

// Clear empties the window.
func (w *RollingWindow) Clear() {
	w.points = w.points[:0]
}
