package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/festrank/internal/adapters/auth"
	service "github.com/okian/festrank/internal/app"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrMissingAuth  = errors.New("api: token provider is required")
)

// Error ties an operation name to an error kind and its cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error { return &Error{Op: op, Kind: kind} }

// Wrap attaches op to err.
func Wrap(op string, err error) error { return &Error{Op: op, Err: err} }

// WrapKind attaches op and kind to err.
func WrapKind(op string, kind, err error) error { return &Error{Op: op, Kind: kind, Err: err} }

type errorMapping struct {
	kind   error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{ErrBadRequest, http.StatusBadRequest, "bad_request"},
	{ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
	{auth.ErrExpiredToken, http.StatusUnauthorized, "token_expired"},
	{auth.ErrInvalidSignature, http.StatusUnauthorized, "unauthorized"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},
	{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{service.ErrInvalidSubmission, http.StatusBadRequest, "invalid_submission"},
	{service.ErrInvalidCounts, http.StatusBadRequest, "invalid_counts"},
	{service.ErrNotFullCombo, http.StatusBadRequest, "not_full_combo"},
	{service.ErrDifficultyRequired, http.StatusBadRequest, "difficulty_required"},
	{service.ErrInvalidDifficulty, http.StatusBadRequest, "invalid_difficulty"},
	{service.ErrInvalidLimit, http.StatusBadRequest, "limit_exceeded"},
	{service.ErrInvalidSongName, http.StatusBadRequest, "invalid_song"},
	{service.ErrUnknownInstrument, http.StatusNotFound, "unknown_instrument"},
	{service.ErrUnknownSong, http.StatusNotFound, "unknown_song"},
	{service.ErrPlayerNotFound, http.StatusNotFound, "not_found"},
	{service.ErrReviewNotFound, http.StatusNotFound, "not_found"},
	{service.ErrDuplicate, http.StatusConflict, "duplicate"},
	{service.ErrReviewClosed, http.StatusConflict, "review_closed"},
}

// statusFor maps an error to its HTTP status and response code.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.kind) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
