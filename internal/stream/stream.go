// Package stream implements the pure, dependency-free math of a time-linear
// transfer: how much of a stream's total amount has conveyed by a given
// time. Every other kernel package computes "amount streamed by t" through
// this package rather than re-deriving it, so the floor-division rule has
// exactly one home.
package stream

import "math/big"

// HasStarted reports whether t is at or after startTs.
func HasStarted(startTs, t int64) bool {
	return t >= startTs
}

// HasEnded reports whether t is at or after the stream's end (startTs plus
// duration). A zero-duration stream has ended as soon as it has started.
func HasEnded(startTs, duration, t int64) bool {
	return t >= startTs+duration
}

// Streamed returns the amount conveyed by time t for a stream of the given
// startTs, duration and total amount:
//
//   - 0 if t is before startTs;
//   - amount if t is at or after startTs+duration (including duration == 0);
//   - otherwise floor(amount * (t - startTs) / duration).
//
// Rounding is always toward zero; callers are responsible for negating the
// result when the queried wallet is the stream's sender rather than its
// recipient.
func Streamed(startTs, duration int64, amount *big.Int, t int64) *big.Int {
	if t < startTs {
		return big.NewInt(0)
	}
	if duration == 0 || t >= startTs+duration {
		return new(big.Int).Set(amount)
	}
	elapsed := big.NewInt(t - startTs)
	num := new(big.Int).Mul(amount, elapsed)
	return num.Div(num, big.NewInt(duration))
}
