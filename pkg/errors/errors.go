// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// scikit-learnの警告・例外システムにインスパイアされており、構造化されたエラー情報を提供します。
package errors

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("rforest-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
// nil を渡すと従来のハンドラに戻ります。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが利用可能な場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// TreeExclusionWarning は推論に失敗した木が集約から除外されたことを示す警告です。
type TreeExclusionWarning struct {
	TreeIndex int
	Attempts  int
	Cause     error
}

func (w *TreeExclusionWarning) Error() string {
	return fmt.Sprintf("tree %d excluded from aggregation after %d attempts: %v", w.TreeIndex, w.Attempts, w.Cause)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *TreeExclusionWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Int("tree_index", w.TreeIndex).
		Int("attempts", w.Attempts).
		AnErr("cause", w.Cause).
		Str("type", "TreeExclusionWarning")
}

// NewTreeExclusionWarning は新しいTreeExclusionWarningを作成します。
func NewTreeExclusionWarning(treeIndex, attempts int, cause error) *TreeExclusionWarning {
	return &TreeExclusionWarning{TreeIndex: treeIndex, Attempts: attempts, Cause: cause}
}

// PartialFitWarning は許容範囲内で一部の木の学習が失敗したことを示す警告です。
type PartialFitWarning struct {
	Failed int
	Total  int
}

func (w *PartialFitWarning) Error() string {
	return fmt.Sprintf("%d of %d trees failed to fit; ensemble built from the remaining %d", w.Failed, w.Total, w.Total-w.Failed)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *PartialFitWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Int("failed", w.Failed).
		Int("total", w.Total).
		Str("type", "PartialFitWarning")
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` などを呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("rforest: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("rforest: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", e.axisName()).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rforest: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("rforest: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError は機械学習モデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rforest: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("rforest: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// ===========================================================================
//
//	アンサンブル学習のエラー型
//
// ===========================================================================

// InvalidDataError は単一の木の学習タスクに不正・空の入力が渡された場合のエラーです。
type InvalidDataError struct {
	Op     string
	Reason string
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("rforest: %s: invalid data: %s", e.Op, e.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InvalidDataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Str("type", "InvalidDataError")
}

// NewInvalidDataError は新しいInvalidDataErrorを作成し、スタックトレースを付与します。
func NewInvalidDataError(op, reason string) error {
	return errors.WithStack(&InvalidDataError{Op: op, Reason: reason})
}

// TaskFailure は1本の木のタスクの失敗記録です。
type TaskFailure struct {
	Index int
	Err   error
}

// EnsembleFitError は失敗率が許容値を超えたためにアンサンブル全体の学習が失敗したことを示します。
// Unwrap は最も小さいインデックスの失敗原因を返し、失敗記録がなければ ErrNoUsableTrees を返します。
// 並列学習では許容値を超えた時点で残りのタスクが打ち切られるため、Failures は
// 打ち切り時点までに記録された失敗のみを含みます(ワーカーが1つの場合は決定的)。
type EnsembleFitError struct {
	Op        string
	Total     int
	Tolerance float64
	Failures  []TaskFailure // インデックス昇順
}

// FirstFailure は最も小さいインデックスの失敗を返します。失敗がなければ ok=false。
func (e *EnsembleFitError) FirstFailure() (TaskFailure, bool) {
	if len(e.Failures) == 0 {
		return TaskFailure{}, false
	}
	return e.Failures[0], true
}

// FailedIndices は失敗したタスクのインデックスを昇順で返します。
func (e *EnsembleFitError) FailedIndices() []int {
	out := make([]int, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Index
	}
	return out
}

func (e *EnsembleFitError) Error() string {
	first, ok := e.FirstFailure()
	if !ok {
		return fmt.Sprintf("rforest: %s: ensemble has no usable trees (0 of %d)", e.Op, e.Total)
	}
	return fmt.Sprintf("rforest: %s: %d of %d tree tasks failed (tolerance %.3g); first failure at tree %d: %v",
		e.Op, len(e.Failures), e.Total, e.Tolerance, first.Index, first.Err)
}

func (e *EnsembleFitError) Unwrap() error {
	if first, ok := e.FirstFailure(); ok {
		return first.Err
	}
	return ErrNoUsableTrees
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *EnsembleFitError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("total", e.Total).
		Int("failed", len(e.Failures)).
		Float64("tolerance", e.Tolerance).
		Ints("failed_indices", e.FailedIndices()).
		Str("type", "EnsembleFitError")
}

// NewEnsembleFitError は新しいEnsembleFitErrorを作成し、スタックトレースを付与します。
// failures はインデックス昇順に並べ替えられます。
func NewEnsembleFitError(op string, total int, tolerance float64, failures []TaskFailure) error {
	sorted := make([]TaskFailure, len(failures))
	copy(sorted, failures)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	return errors.WithStack(&EnsembleFitError{Op: op, Total: total, Tolerance: tolerance, Failures: sorted})
}

// ConcurrentFitError は学習中のモデルに対して再度 Fit が呼ばれた場合のエラーです。
type ConcurrentFitError struct {
	ModelName string
}

func (e *ConcurrentFitError) Error() string {
	return fmt.Sprintf("rforest: %s: fit already in progress; fitting is not reentrant", e.ModelName)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConcurrentFitError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("type", "ConcurrentFitError")
}

// NewConcurrentFitError は新しいConcurrentFitErrorを作成し、スタックトレースを付与します。
func NewConcurrentFitError(modelName string) error {
	return errors.WithStack(&ConcurrentFitError{ModelName: modelName})
}

// TaskTimeoutError はタスクごとの期限を超過した場合のエラーです。
type TaskTimeoutError struct {
	Op      string
	Index   int
	Timeout time.Duration
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("rforest: %s: task %d exceeded its deadline of %s", e.Op, e.Index, e.Timeout)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *TaskTimeoutError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("index", e.Index).
		Dur("timeout", e.Timeout).
		Str("type", "TaskTimeoutError")
}

// NewTaskTimeoutError は新しいTaskTimeoutErrorを作成し、スタックトレースを付与します。
func NewTaskTimeoutError(op string, index int, timeout time.Duration) error {
	return errors.WithStack(&TaskTimeoutError{Op: op, Index: index, Timeout: timeout})
}

// FormatFailures は失敗記録を "index: cause" 形式の1行にまとめます。
func FormatFailures(failures []TaskFailure) string {
	parts := make([]string, len(failures))
	for i, f := range failures {
		parts[i] = fmt.Sprintf("%d: %v", f.Index, f.Err)
	}
	return strings.Join(parts, "; ")
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrNoUsableTrees は集約に使える木が1本もない場合のエラーです。
	ErrNoUsableTrees = New("no usable trees")
)
