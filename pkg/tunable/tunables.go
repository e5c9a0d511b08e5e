// Package tunable holds integer settings that the driver can adjust while the robot runs.
package tunable

import (
	"sync/atomic"

	"github.com/edaniels/golog"
)

type Tunable struct {
	Name     string
	Value    int64
	Min, Max int
}

// Add moves the value by delta, stopping at the limits, and returns the new value.
func (t *Tunable) Add(delta int) int {
	for {
		old := atomic.LoadInt64(&t.Value)
		newV := old + int64(delta)
		if newV < int64(t.Min) {
			newV = int64(t.Min)
		}
		if newV > int64(t.Max) {
			newV = int64(t.Max)
		}
		if atomic.CompareAndSwapInt64(&t.Value, old, newV) {
			return int(newV)
		}
	}
}

func (t *Tunable) Get() int {
	return int(atomic.LoadInt64(&t.Value))
}

// Fraction is the value as a fraction of Max.
func (t *Tunable) Fraction() float64 {
	if t.Max == 0 {
		return 0
	}
	return float64(t.Get()) / float64(t.Max)
}

// Tunables is a list of tunables with one selected for adjustment.
type Tunables struct {
	All      []*Tunable
	selected int
	logger   golog.Logger
}

func New(logger golog.Logger) *Tunables {
	return &Tunables{logger: logger.Named("tunables")}
}

func (t *Tunables) Create(name string, value, min, max int) *Tunable {
	newTunable := &Tunable{
		Name:  name,
		Value: int64(value),
		Min:   min,
		Max:   max,
	}
	t.All = append(t.All, newTunable)
	return newTunable
}

func (t *Tunables) SelectNext() {
	t.selected++
	if t.selected >= len(t.All) {
		t.selected = 0
	}
	t.logger.Infow("selected", "tunable", t.Current().Name, "value", t.Current().Get())
}

func (t *Tunables) SelectPrev() {
	t.selected--
	if t.selected < 0 {
		t.selected = len(t.All) - 1
	}
	t.logger.Infow("selected", "tunable", t.Current().Name, "value", t.Current().Get())
}

// Adjust adds delta to the selected tunable.
func (t *Tunables) Adjust(delta int) {
	v := t.Current().Add(delta)
	t.logger.Infow("adjusted", "tunable", t.Current().Name, "value", v)
}

func (t *Tunables) Current() *Tunable {
	return t.All[t.selected]
}
