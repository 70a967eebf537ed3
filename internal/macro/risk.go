package macro

// MarketRisk condenses a snapshot to [0,1]. Weights favor the two signals
// with the strongest historical link to drawdowns: implied volatility and
// curve inversion. A zero-value snapshot (provider down, nothing cached)
// scores a neutral 0.5 so the policy neither blocks nor ignores risk.
func MarketRisk(s Snapshot) float64 {
	if s == (Snapshot{}) || s.FetchedAt.IsZero() && s.VIX == 0 {
		return 0.5
	}

	// VIX: ~12 is calm, 50+ is crisis.
	vixRisk := clamp01((s.VIX - 12) / 38)

	// Yield curve: positive spread is benign, inversion ramps risk up to a
	// full contribution at -1.0.
	curveRisk := 0.0
	if s.YieldCurve < 0 {
		curveRisk = clamp01(-s.YieldCurve)
	}

	// Fed funds: restrictive policy above ~2% adds risk, saturating at 6%.
	fedRisk := clamp01((s.FedFundsRate - 2) / 4)

	// Unemployment: elevated readings above 4% add risk, saturating at 8%.
	unempRisk := clamp01((s.UnemploymentRate - 4) / 4)

	return clamp01(0.45*vixRisk + 0.25*curveRisk + 0.15*fedRisk + 0.15*unempRisk)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
