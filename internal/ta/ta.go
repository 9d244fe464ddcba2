package ta

import "math"

func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100.0
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100.0 - (100.0 / (1.0 + rs))
}

// RSISeries returns one RSI value per close starting at index period, so the
// caller can line results up against candle timestamps. Values before enough
// history exist are skipped.
func RSISeries(closes []float64, period int) []float64 {
	if len(closes) < period+1 || period <= 0 {
		return nil
	}
	out := make([]float64, 0, len(closes)-period)
	for i := period; i < len(closes); i++ {
		out = append(out, RSI(closes[:i+1], period))
	}
	return out
}
