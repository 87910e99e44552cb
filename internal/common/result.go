// result.go - Tagged text result used wherever an external call can fail

package common

import "fmt"

// Outcome is the variant of a Text result
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTransient
	OutcomePermanent
)

// FailureKind classifies why a Text is not a success
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureImageFetch  FailureKind = "image_fetch"
	FailureAIEndpoint  FailureKind = "ai_endpoint"
	FailureTimeout     FailureKind = "timeout"
	FailureConnection  FailureKind = "connection"
	FailureCredentials FailureKind = "credentials"
	FailureUnexpected  FailureKind = "unexpected"
)

// failureLabels are the labels shown to reviewers in place of a value
var failureLabels = map[FailureKind]string{
	FailureImageFetch:  "画像取得失敗",
	FailureAIEndpoint:  "AI APIエラー",
	FailureTimeout:     "タイムアウトエラー",
	FailureConnection:  "API接続エラー",
	FailureCredentials: "認証情報エラー",
	FailureUnexpected:  "予期せぬエラー",
}

// Text is a string value or a classified failure. The zero value is an empty success.
type Text struct {
	Outcome Outcome     `json:"outcome"`
	Value   string      `json:"value,omitempty"`
	Failure FailureKind `json:"failure,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Success wraps a value, which may be empty
func Success(value string) Text {
	return Text{Outcome: OutcomeSuccess, Value: value}
}

// TransientError is a failure that could succeed on a later attempt
func TransientError(kind FailureKind, message string) Text {
	return Text{Outcome: OutcomeTransient, Failure: kind, Message: message}
}

// PermanentError is a failure that will not go away by retrying
func PermanentError(kind FailureKind, message string) Text {
	return Text{Outcome: OutcomePermanent, Failure: kind, Message: message}
}

// IsSuccess reports whether t holds a value
func (t Text) IsSuccess() bool {
	return t.Outcome == OutcomeSuccess
}

// IsFailure reports whether t is either error variant
func (t Text) IsFailure() bool {
	return t.Outcome != OutcomeSuccess
}

// Usable reports whether t is a success with non-empty content
func (t Text) Usable() bool {
	return t.IsSuccess() && t.Value != ""
}

// Label returns the reviewer-facing failure label, empty for successes
func (t Text) Label() string {
	if t.IsSuccess() {
		return ""
	}
	label := failureLabels[t.Failure]
	if label == "" {
		label = failureLabels[FailureUnexpected]
	}
	if t.Message == "" {
		return label
	}
	return fmt.Sprintf("%s: %s", label, t.Message)
}

// Display returns the value for successes and the failure label otherwise
func (t Text) Display() string {
	if t.IsSuccess() {
		return t.Value
	}
	return t.Label()
}

// String implements fmt.Stringer
func (t Text) String() string {
	return t.Display()
}
