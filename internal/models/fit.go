package models

import "fmt"

// FitResult is the outcome of fitting one profile against the template.
// Shift is in turns: rotating the profile by Shift aligns it with the template.
type FitResult struct {
	Shift         float64
	ShiftVariance float64
	Scale         float64
	ScaleVariance float64
	MSE           float64
	SNR           float64
	Harmonics     int
}

// TOA is one time-of-arrival measurement.
type TOA struct {
	File        string
	Subint      int
	Chan        int
	Frequency   float64
	Arrival     MJD
	ErrorMicros float64
	Telescope   string
	SNR         float64
}

// Line renders the TOA as a tempo2 FORMAT 1 line.
func (t TOA) Line() string {
	site := t.Telescope
	if site == "" {
		site = "@"
	}
	return fmt.Sprintf(" %s %.6f %s %.3f %s -snr %.2f -subint %d -chan %d",
		t.File, t.Frequency, t.Arrival, t.ErrorMicros, site, t.SNR, t.Subint, t.Chan)
}
