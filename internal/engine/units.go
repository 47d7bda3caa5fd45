package engine

import "math"

// GramsPerOunce is the single conversion constant used everywhere.
// Catalog entry, live weighing display and stored totals all go through it.
const GramsPerOunce = 28.349523125

func OuncesToGrams(oz float64) float64 { return oz * GramsPerOunce }

func GramsToOunces(g float64) float64 { return g / GramsPerOunce }

// Round2 rounds to 2 decimal places for display at the entry unit.
// Internal summation never calls this; only boundaries do.
func Round2(v float64) float64 { return math.Round(v*100) / 100 }

// RoundGrams converts an internal float total to the whole-gram value
// persisted on order records. Halves round away from zero, so signed
// deltas keep their magnitude symmetric.
func RoundGrams(v float64) int64 { return int64(math.Round(v)) }
