package model

// EstimatorState はモデルの学習状態を表す
type EstimatorState int

const (
	// Unfit はモデルが未学習の状態
	Unfit EstimatorState = iota
	// Fitting は学習処理が進行中の状態
	Fitting
	// Fitted はモデルが学習済みの状態
	Fitted
)

// String は状態名を返す
func (s EstimatorState) String() string {
	switch s {
	case Unfit:
		return "unfit"
	case Fitting:
		return "fitting"
	case Fitted:
		return "fitted"
	default:
		return "unknown"
	}
}
