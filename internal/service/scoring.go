package service

// ScorePercent returns correct/total*100 rounded to one decimal place using
// round-half-to-even. The division is done on integers so that halves are
// detected exactly: 1 of 2000 is 0.05% and rounds to 0.0, 3 of 2000 is 0.15%
// and rounds to 0.2.
func ScorePercent(correct, total int) float64 {
	if total <= 0 || correct <= 0 {
		return 0
	}
	if correct > total {
		correct = total
	}

	numerator := correct * 1000
	tenths := numerator / total
	remainder := numerator % total

	switch {
	case 2*remainder > total:
		tenths++
	case 2*remainder == total && tenths%2 == 1:
		tenths++
	}
	return float64(tenths) / 10
}

// ScoreBand is the grade band used by reports and the student summary.
func ScoreBand(score float64) string {
	switch {
	case score >= 86:
		return "excellent"
	case score >= 71:
		return "good"
	case score >= 56:
		return "satisfactory"
	}
	return "poor"
}
