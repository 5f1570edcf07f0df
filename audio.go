package main

import "math"

// PI-controller constants from the reference audio bridge.
const (
	catchFactor  = 100000.0
	catchFactor2 = 10000.0
	pclamp       = 15.0
	controlQuant = 10000.0
	ringSize     = 512
)

// hannWindow is the 512-point Hann window used to smooth the offset
// samples fed into the controller.
var hannWindow = makeHannWindow(ringSize)

func makeHannWindow(n int) [ringSize]float64 {
	var w [ringSize]float64
	for i := 0; i < n; i++ {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// Controller holds the per-stream resample-ratio control loop state: the
// static (server-rate/source-rate) factor, its rolling mean, the 512-slot
// ring of recent offset samples, and the running integral term. It is
// deliberately hardware-free so the convergence property can be tested
// without ALSA/JACK.
type Controller struct {
	target  int
	maxDiff int
	static  float64
	mean    float64

	ring     [ringSize]float64
	index    int
	integral float64
}

// NewController builds a controller targeting delay (in frames) with the
// given tolerance and static resample factor (serverRate/sourceRate).
func NewController(target, maxDiff int, static float64) *Controller {
	return &Controller{target: target, maxDiff: maxDiff, static: static, mean: static}
}

// Target reports the configured target delay in frames.
func (c *Controller) Target() int { return c.target }

// MaxDiff reports the allowable deviation from the target before a
// consume/rewind correction is triggered.
func (c *Controller) MaxDiff() int { return c.maxDiff }

// ResetIntegrator reinitializes the integral term and zeroes the offset
// ring, needed after a consume or rewind correction snaps the delay
// back to target.
func (c *Controller) ResetIntegrator() {
	c.integral = -(c.mean - c.static) * catchFactor * catchFactor2
	c.ring = [ringSize]float64{}
}

// Step records one offset sample (current delay minus target, in frames)
// and returns the next resample ratio: a Hann-smoothed proportional term
// plus an integral term, quantized and clamped to [0.25, 4.0].
func (c *Controller) Step(offset float64) float64 {
	c.ring[c.index%ringSize] = offset

	var smoothed float64
	for i := 0; i < ringSize; i++ {
		smoothed += c.ring[(i+c.index-1+ringSize)%ringSize] * hannWindow[i]
	}
	smoothed /= ringSize

	c.integral += smoothed

	proportional := smoothed
	if math.Abs(smoothed) < pclamp {
		proportional = 0
	}

	factor := c.static - proportional/catchFactor - c.integral/(catchFactor*catchFactor2)
	factor = math.Round((factor-c.mean)*controlQuant)/controlQuant + c.mean

	if factor < 0.25 {
		factor = 0.25
	}
	if factor > 4.0 {
		factor = 4.0
	}

	c.mean = 0.9999*c.mean + 0.0001*factor
	c.index++
	return factor
}
