package meter

import (
	"fmt"
	"testing"
)

func TestRollingWindow_PushBelowCapacity(t *testing.T) {
	w := NewRollingWindow(20)

	for i := 0; i < 5; i++ {
		w.Push(Point{Time: fmt.Sprintf("00:00:%02d", i), Value: float64(i)})
	}

	if w.Len() != 5 {
		t.Errorf("Len = %d, want 5", w.Len())
	}

	points := w.Points()
	for i, p := range points {
		if p.Value != float64(i) {
			t.Errorf("Point %d value = %v, want %v", i, p.Value, float64(i))
		}
	}
}

func TestRollingWindow_EvictsOldest(t *testing.T) {
	w := NewRollingWindow(20)

	// 25 pushes into a window of 20 leaves values 5..24
	for i := 0; i < 25; i++ {
		w.Push(Point{Value: float64(i)})
	}

	if w.Len() != 20 {
		t.Errorf("Len = %d, want 20", w.Len())
	}

	points := w.Points()
	if points[0].Value != 5.0 {
		t.Errorf("Oldest point = %v, want 5.0", points[0].Value)
	}
	if points[19].Value != 24.0 {
		t.Errorf("Newest point = %v, want 24.0", points[19].Value)
	}

	for i := 1; i < len(points); i++ {
		if points[i].Value != points[i-1].Value+1 {
			t.Errorf("Points out of order at index %d", i)
		}
	}
}

func TestRollingWindow_PointsIsCopy(t *testing.T) {
	w := NewRollingWindow(3)
	w.Push(Point{Value: 1})

	points := w.Points()
	points[0].Value = 99

	if w.Points()[0].Value != 1 {
		t.Error("Mutating the returned slice should not affect the window")
	}
}

func TestRollingWindow_Clear(t *testing.T) {
	w := NewRollingWindow(5)
	for i := 0; i < 5; i++ {
		w.Push(Point{Value: float64(i)})
	}

	w.Clear()

	if w.Len() != 0 {
		t.Errorf("Len after clear = %d, want 0", w.Len())
	}
	if w.Capacity() != 5 {
		t.Errorf("Capacity after clear = %d, want 5", w.Capacity())
	}

	// Window must keep working after a clear
	w.Push(Point{Value: 7})
	if w.Len() != 1 || w.Points()[0].Value != 7 {
		t.Error("Push after clear failed")
	}
}
