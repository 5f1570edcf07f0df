package main

import (
	"math"
	"testing"
)

func TestControllerConvergence(t *testing.T) {
	// static_factor = 48000/96000 = 0.5, target = 4096.
	c := NewController(4096, 1024, 0.5)

	var factor float64
	for i := 0; i < 512; i++ {
		factor = c.Step(0)
	}

	if math.Abs(factor-0.5) >= 1.0/controlQuant {
		t.Fatalf("factor = %v after 512 zero-offset callbacks, want within %v of 0.5", factor, 1.0/controlQuant)
	}
}

func TestControllerClampsToRange(t *testing.T) {
	c := NewController(4096, 1024, 0.5)
	// A large sustained offset should saturate, never escape [0.25, 4.0].
	var factor float64
	for i := 0; i < 2000; i++ {
		factor = c.Step(100000)
	}
	if factor < 0.25 || factor > 4.0 {
		t.Fatalf("factor = %v, want within [0.25, 4.0]", factor)
	}
}

func TestControllerResetIntegrator(t *testing.T) {
	c := NewController(4096, 1024, 0.5)
	for i := 0; i < 50; i++ {
		c.Step(200) // raw offset well above pclamp; fills part of the ring before the reset
	}
	c.ResetIntegrator()

	want := -(c.mean - c.static) * catchFactor * catchFactor2
	if c.integral != want {
		t.Fatalf("integral = %v after reset, want %v", c.integral, want)
	}
	for i, v := range c.ring {
		if v != 0 {
			t.Fatalf("ring[%d] = %v after reset, want 0", i, v)
		}
	}
}
