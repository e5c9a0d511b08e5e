package tunable

import (
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
)

func TestTunables(t *testing.T) {
	tt := New(golog.NewTestLogger(t))
	speed := tt.Create("speed", 100, 10, 100)
	turn := tt.Create("turn", 50, 10, 100)

	test.That(t, tt.Current(), test.ShouldEqual, speed)
	tt.Adjust(10)
	test.That(t, speed.Get(), test.ShouldEqual, 100)
	tt.Adjust(-120)
	test.That(t, speed.Get(), test.ShouldEqual, 10)
	test.That(t, speed.Fraction(), test.ShouldAlmostEqual, 0.1)

	tt.SelectNext()
	test.That(t, tt.Current(), test.ShouldEqual, turn)
	tt.Adjust(20)
	test.That(t, turn.Get(), test.ShouldEqual, 70)

	tt.SelectNext()
	test.That(t, tt.Current(), test.ShouldEqual, speed)
	tt.SelectPrev()
	test.That(t, tt.Current(), test.ShouldEqual, turn)
	tt.SelectPrev()
	test.That(t, tt.Current(), test.ShouldEqual, speed)
}
