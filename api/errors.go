package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ProblemDetail is an RFC 7807 error body.
type ProblemDetail struct {
	Type     string        `json:"type,omitempty"`
	Status   int           `json:"status,omitempty"`
	Title    string        `json:"title,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Instance string        `json:"instance,omitempty"`
	Errors   []ErrorDetail `json:"errors,omitempty"`
}

type ErrorDetail struct {
	Detail  string `json:"detail"`
	Pointer string `json:"pointer"`
}

type ProblemOption func(*ProblemDetail)

func NewProblemDetail(options ...ProblemOption) ProblemDetail {
	problem := ProblemDetail{}
	for _, option := range options {
		option(&problem)
	}
	return problem
}

func WithStatus(s int) ProblemOption {
	return func(p *ProblemDetail) {
		p.Status = s
	}
}

func WithTitle(t string) ProblemOption {
	return func(p *ProblemDetail) {
		p.Title = t
	}
}

func WithDetail(d string) ProblemOption {
	return func(p *ProblemDetail) {
		p.Detail = d
	}
}

func WithInstance(i string) ProblemOption {
	return func(p *ProblemDetail) {
		p.Instance = i
	}
}

func WithErrors(e []ErrorDetail) ProblemOption {
	return func(p *ProblemDetail) {
		p.Errors = e
	}
}

func NewValidationProblem(e error) ProblemDetail {
	return NewProblemDetail(
		WithStatus(http.StatusBadRequest),
		WithTitle("Input Validation Error"),
		WithDetail("Your request has invalid query parameters."),
		WithErrors(readableErrors(e)),
	)
}

func NewUnavailableProblem(detail string) ProblemDetail {
	return NewProblemDetail(
		WithStatus(http.StatusServiceUnavailable),
		WithTitle("Snapshot Unavailable"),
		WithDetail(detail),
	)
}

func abortWithProblem(c *gin.Context, p ProblemDetail) {
	p.Instance = c.Request.URL.Path
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(p.Status, p)
}

func readableErrors(err error) []ErrorDetail {
	var errors []ErrorDetail
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ErrorDetail{{Detail: err.Error(), Pointer: "#/"}}
	}
	for _, e := range errs {
		var detail string
		switch e.Tag() {
		case "required":
			detail = "is required"
		case "min", "max":
			detail = "must be between 1 and " + maxLedgerLimitText
		default:
			detail = "is invalid"
		}
		errors = append(errors, ErrorDetail{Detail: detail, Pointer: "#/" + strings.ToLower(e.Field())})
	}
	return errors
}
