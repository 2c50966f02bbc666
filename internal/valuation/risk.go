package valuation

import (
	"math"
	"sort"

	"github.com/jtarrant/folio/internal/models"
)

// tradingDaysPerYear is the conventional annualization factor for daily returns.
const tradingDaysPerYear = 252

// RiskMetrics holds NAV-series risk figures.
type RiskMetrics struct {
	AnnualizedVolatility float64 `json:"annualized_volatility"` // percent
	MaxDrawdown          float64 `json:"max_drawdown"`          // fraction of peak
	SharpeRatio          float64 `json:"sharpe_ratio"`
	DataPoints           int     `json:"data_points"`
}

// DailyReturns computes period-over-period returns of a NAV series in
// ascending date order. Zero NAV points are skipped rather than divided by.
func DailyReturns(nav []float64) []float64 {
	if len(nav) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(nav)-1)
	for i := 1; i < len(nav); i++ {
		if nav[i-1] == 0 {
			continue
		}
		returns = append(returns, (nav[i]-nav[i-1])/nav[i-1])
	}
	return returns
}

// AnnualizedVolatility is the sample standard deviation of daily returns
// scaled to a year of trading days, expressed in percent.
func AnnualizedVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return stddev(returns) * math.Sqrt(tradingDaysPerYear) * 100
}

// MaxDrawdown is the largest peak-to-trough decline of an ascending-date NAV
// series, as a fraction of the peak.
func MaxDrawdown(nav []float64) float64 {
	var peak, maxDD float64
	for _, v := range nav {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// SharpeRatio relates annualized excess return to annualized volatility,
// returning zero when the volatility is zero.
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	vol := AnnualizedVolatility(returns)
	if vol == 0 {
		return 0
	}
	annualReturn := mean(returns) * tradingDaysPerYear
	return (annualReturn - riskFreeRate) / vol
}

// ComputeRisk derives risk metrics from portfolio snapshots carrying a
// NAV-per-share value. Snapshots are sorted by date ascending; entries
// without a NAV are ignored.
func ComputeRisk(snapshots []models.PortfolioSnapshot, riskFreeRate float64) *RiskMetrics {
	ordered := make([]models.PortfolioSnapshot, len(snapshots))
	copy(ordered, snapshots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SnapshotDate.Before(ordered[j].SnapshotDate)
	})

	nav := make([]float64, 0, len(ordered))
	for i := range ordered {
		if v := ordered[i].NAVPerShare.InexactFloat64(); v > 0 {
			nav = append(nav, v)
		}
	}

	returns := DailyReturns(nav)
	return &RiskMetrics{
		AnnualizedVolatility: AnnualizedVolatility(returns),
		MaxDrawdown:          MaxDrawdown(nav),
		SharpeRatio:          SharpeRatio(returns, riskFreeRate),
		DataPoints:           len(nav),
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
