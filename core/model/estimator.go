package model

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// ContextFitter はキャンセルや期限を学習処理中に観測できるモデルのインターフェース
type ContextFitter interface {
	// FitContext は ctx が終了した時点で学習を打ち切り ctx.Err() を返す
	FitContext(ctx context.Context, X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// ProbaPredictor はクラス確率を出力できるモデルのインターフェース
type ProbaPredictor interface {
	// PredictProba は各行についてクラスごとの確率を返す。列は Classes() の順
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes は学習時に観測したクラスを昇順で返す
	Classes() []int
}

// Estimator は学習と予測の両方を持つ基本インターフェース
type Estimator interface {
	Fitter
	Predictor
}
