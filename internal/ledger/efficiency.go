package ledger

import (
	"github.com/ukydev/fuelscope/internal/models"
)

const (
	// EfficiencyWindow is how many prior fuel entries the baseline needs.
	EfficiencyWindow = 5
	// EfficiencyDropRatio is the fraction of the baseline below which a new
	// entry is flagged.
	EfficiencyDropRatio = 0.8
)

// EfficiencyReport compares a fuel entry against its recent baseline.
// Rates are distance per unit of volume.
type EfficiencyReport struct {
	Baseline float64 `json:"baseline"`
	Current  float64 `json:"current"`
	Pairs    int     `json:"pairs"`
	Drop     bool    `json:"drop"`
}

// DropPercent is how far below the baseline the current rate is.
func (r EfficiencyReport) DropPercent() float64 {
	if r.Baseline <= 0 {
		return 0
	}
	return (1 - r.Current/r.Baseline) * 100
}

// AnalyzeEfficiency computes the baseline from prior, the newest-first
// window of other fuel entries, and rates entry against it. It reports
// false when there is not enough history to judge.
func AnalyzeEfficiency(entry *models.Expense, prior []models.Expense) (EfficiencyReport, bool) {
	if entry.Type != models.CategoryFuel || len(prior) < EfficiencyWindow {
		return EfficiencyReport{}, false
	}
	volume := entry.Volume()
	distance := entry.Odometer - prior[0].Odometer
	if volume <= 0 || distance <= 0 {
		return EfficiencyReport{}, false
	}

	var sum float64
	var pairs int
	for i := 1; i < len(prior); i++ {
		older, newer := prior[i], prior[i-1]
		d := newer.Odometer - older.Odometer
		v := newer.Volume()
		if d <= 0 || v <= 0 {
			continue
		}
		sum += d / v
		pairs++
	}
	if pairs == 0 {
		return EfficiencyReport{}, false
	}

	report := EfficiencyReport{
		Baseline: sum / float64(pairs),
		Current:  distance / volume,
		Pairs:    pairs,
	}
	report.Drop = report.Current < report.Baseline*EfficiencyDropRatio
	return report, true
}
