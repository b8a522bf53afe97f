// Package features computes the engineered indicator set shared by the model
// strategies. Compute is a pure function from bars to feature rows; rows
// containing NaN or Inf after indicator warmup are dropped, so every value in
// the output is finite.
package features

import (
	"math"

	"github.com/jacattac314/Titan-Finance/internal/domain"
)

// Indicator parameters. These match the training pipeline and must not drift
// from it.
const (
	RSIPeriod     = 14
	MACDFast      = 12
	MACDSlow      = 26
	MACDSignal    = 9
	BollingerLen  = 20
	BollingerStd  = 2.0
	ATRPeriod     = 14
	VolumeSMALen  = 10
)

// Row is one bar enriched with the engineered feature set.
type Row struct {
	Bar domain.Bar

	LogRet     float64
	RSI        float64
	MACD       float64
	MACDSig    float64
	MACDHist   float64
	BBU        float64
	BBM        float64
	BBL        float64
	ATR        float64
	VolSMA     float64
}

// Names lists the model-input features in vector order.
var Names = []string{
	"open", "high", "low", "close", "volume",
	"log_ret", "rsi", "macd", "macd_signal", "macd_hist",
	"bbu", "bbm", "bbl", "atr",
}

// Vector returns the row as the model-input feature vector, in Names order.
func (r Row) Vector() []float64 {
	return []float64{
		r.Bar.Open, r.Bar.High, r.Bar.Low, r.Bar.Close, r.Bar.Volume,
		r.LogRet, r.RSI, r.MACD, r.MACDSig, r.MACDHist,
		r.BBU, r.BBM, r.BBL, r.ATR,
	}
}

// Compute derives the feature rows for the given bars. Rows whose indicators
// are not yet defined (warmup) or not finite are dropped.
func Compute(bars []domain.Bar) []Row {
	n := len(bars)
	if n == 0 {
		return nil
	}

	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	logRet := logReturns(closes)
	rsi := wilderRSI(closes, RSIPeriod)
	macd, macdSig, macdHist := macdTriplet(closes, MACDFast, MACDSlow, MACDSignal)
	bbu, bbm, bbl := bollinger(closes, BollingerLen, BollingerStd)
	atr := wilderATR(bars, ATRPeriod)
	volSMA := sma(volumes, VolumeSMALen)

	out := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		row := Row{
			Bar:      bars[i],
			LogRet:   logRet[i],
			RSI:      rsi[i],
			MACD:     macd[i],
			MACDSig:  macdSig[i],
			MACDHist: macdHist[i],
			BBU:      bbu[i],
			BBM:      bbm[i],
			BBL:      bbl[i],
			ATR:      atr[i],
			VolSMA:   volSMA[i],
		}
		if rowFinite(row) {
			out = append(out, row)
		}
	}
	return out
}

func rowFinite(r Row) bool {
	for _, v := range r.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !math.IsNaN(r.VolSMA) && !math.IsInf(r.VolSMA, 0)
}

// logReturns computes ln(c_i / c_{i-1}); the first element is NaN.
func logReturns(closes []float64) []float64 {
	out := nanSlice(len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] > 0 && closes[i] > 0 {
			out[i] = math.Log(closes[i] / closes[i-1])
		}
	}
	return out
}

// wilderRSI computes the Wilder-smoothed RSI: simple averages for the first
// period, Wilder's recursive smoothing thereafter. A window with zero average
// loss reads 100.
func wilderRSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if len(closes) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ema computes an exponential moving average seeded with the SMA of the first
// period values; entries before the seed are NaN.
func ema(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if len(values) < period {
		return out
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	prev := sum / float64(period)
	out[period-1] = prev

	alpha := 2.0 / (float64(period) + 1.0)
	for i := period; i < len(values); i++ {
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// macdTriplet computes the MACD line (fast EMA − slow EMA), the signal line
// (EMA of MACD), and the histogram.
func macdTriplet(closes []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	n := len(closes)
	emaFast := ema(closes, fast)
	emaSlow := ema(closes, slow)

	macd = nanSlice(n)
	for i := 0; i < n; i++ {
		if !math.IsNaN(emaFast[i]) && !math.IsNaN(emaSlow[i]) {
			macd[i] = emaFast[i] - emaSlow[i]
		}
	}

	// The signal line smooths the defined portion of the MACD line.
	sig = nanSlice(n)
	hist = nanSlice(n)
	start := slow - 1
	if start >= n {
		return macd, sig, hist
	}
	defined := macd[start:]
	sigDefined := ema(defined, signal)
	for i, v := range sigDefined {
		sig[start+i] = v
	}
	for i := 0; i < n; i++ {
		if !math.IsNaN(macd[i]) && !math.IsNaN(sig[i]) {
			hist[i] = macd[i] - sig[i]
		}
	}
	return macd, sig, hist
}

// bollinger computes the middle band (SMA), and upper/lower bands at k
// population standard deviations. BBU ≥ BBM ≥ BBL holds wherever defined.
func bollinger(closes []float64, period int, k float64) (upper, middle, lower []float64) {
	n := len(closes)
	upper, middle, lower = nanSlice(n), nanSlice(n), nanSlice(n)

	for i := period - 1; i < n; i++ {
		window := closes[i-period+1 : i+1]
		var sum float64
		for _, v := range window {
			sum += v
		}
		mean := sum / float64(period)

		var variance float64
		for _, v := range window {
			d := v - mean
			variance += d * d
		}
		std := math.Sqrt(variance / float64(period))

		middle[i] = mean
		upper[i] = mean + k*std
		lower[i] = mean - k*std
	}
	return upper, middle, lower
}

// wilderATR computes the Wilder-smoothed average true range; always ≥ 0.
func wilderATR(bars []domain.Bar, period int) []float64 {
	n := len(bars)
	out := nanSlice(n)
	if n <= period {
		return out
	}

	tr := make([]float64, n)
	tr[0] = bars[0].High - bars[0].Low
	for i := 1; i < n; i++ {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	var sum float64
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	prev := sum / float64(period)
	out[period] = prev

	for i := period + 1; i < n; i++ {
		prev = (prev*float64(period-1) + tr[i]) / float64(period)
		out[i] = prev
	}
	return out
}

// sma computes a simple moving average; entries before the first full window
// are NaN.
func sma(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if len(values) < period {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// ZScoreWindow normalises each feature column of the given rows' vectors
// within the window: (x − mean) / (std + eps). The deep predictors consume
// this tensor shape directly.
func ZScoreWindow(rows []Row) [][]float64 {
	if len(rows) == 0 {
		return nil
	}
	vectors := make([][]float64, len(rows))
	for i, r := range rows {
		vectors[i] = r.Vector()
	}

	nFeat := len(vectors[0])
	const eps = 1e-8
	means := make([]float64, nFeat)
	stds := make([]float64, nFeat)

	for j := 0; j < nFeat; j++ {
		var sum float64
		for i := range vectors {
			sum += vectors[i][j]
		}
		mean := sum / float64(len(vectors))
		var variance float64
		for i := range vectors {
			d := vectors[i][j] - mean
			variance += d * d
		}
		means[j] = mean
		stds[j] = math.Sqrt(variance / float64(len(vectors)))
	}

	out := make([][]float64, len(vectors))
	for i := range vectors {
		out[i] = make([]float64, nFeat)
		for j := 0; j < nFeat; j++ {
			out[i][j] = (vectors[i][j] - means[j]) / (stds[j] + eps)
		}
	}
	return out
}
