// Package http exposes the challenge service as a JSON API.
//
// This file implements decoding and validation of request bodies and
// query strings.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"envelopes/internal/core"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 16 << 10

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateChallengeRequest is the body of POST /api/challenges.
type CreateChallengeRequest struct {
	Target       int64  `json:"target" validate:"required,min=1"`
	Days         int    `json:"days" validate:"required,min=1,max=3650"`
	Currency     string `json:"currency" validate:"omitempty,iso4217"`
	Distribution string `json:"distribution" validate:"omitempty,oneof=equal progression random"`
}

// UpdateChallengeRequest is the body of PATCH /api/challenges/{code}.
type UpdateChallengeRequest struct {
	Currency string `json:"currency" validate:"required,iso4217"`
}

// DecodeJSON reads one JSON value from the request body into dst. Unknown
// fields and trailing data are rejected.
func DecodeJSON(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxBodyBytes+1)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// ParseCreateChallenge decodes and validates a create request. Currency and
// distribution fall back to the given defaults when omitted.
func ParseCreateChallenge(r *http.Request, defaultCurrency string) (CreateChallengeRequest, error) {
	var req CreateChallengeRequest
	if err := DecodeJSON(r, &req); err != nil {
		return req, err
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Distribution = strings.ToLower(strings.TrimSpace(req.Distribution))
	if err := validate.Struct(req); err != nil {
		return req, validationError(err)
	}
	if req.Currency == "" {
		req.Currency = defaultCurrency
	}
	if req.Distribution == "" {
		req.Distribution = string(core.Equal)
	}
	return req, nil
}

// ParseUpdateChallenge decodes and validates a challenge settings update.
func ParseUpdateChallenge(r *http.Request) (UpdateChallengeRequest, error) {
	var req UpdateChallengeRequest
	if err := DecodeJSON(r, &req); err != nil {
		return req, err
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := validate.Struct(req); err != nil {
		return req, validationError(err)
	}
	return req, nil
}

// ParseCatalogCurrency reads the currency query of the achievement catalog.
func ParseCatalogCurrency(q url.Values, defaultCurrency string) (string, error) {
	cur := strings.ToUpper(strings.TrimSpace(q.Get("currency")))
	if cur == "" {
		return defaultCurrency, nil
	}
	if err := validate.Var(cur, "iso4217"); err != nil {
		return "", errors.New("currency must be an ISO 4217 currency code")
	}
	return cur, nil
}

// validationError flattens validator output into one readable message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min", "max", "len":
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		case "iso4217":
			msgs = append(msgs, field+" must be an ISO 4217 currency code")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// ListParams are the query parameters of the envelope listing.
type ListParams struct {
	Filter core.EnvelopeFilter
	Sort   core.EnvelopeSort
}

// ParseListParams reads filter and sort, defaulting to all envelopes by id.
func ParseListParams(q url.Values) (ListParams, error) {
	p := ListParams{Filter: core.FilterAll, Sort: core.SortByID}
	switch f := core.EnvelopeFilter(strings.ToLower(strings.TrimSpace(q.Get("filter")))); f {
	case "":
	case core.FilterAll, core.FilterOpen, core.FilterClosed:
		p.Filter = f
	default:
		return p, fmt.Errorf("unknown filter %q", f)
	}
	switch s := core.EnvelopeSort(strings.ToLower(strings.TrimSpace(q.Get("sort")))); s {
	case "":
	case core.SortByID, core.SortByAmount:
		p.Sort = s
	default:
		return p, fmt.Errorf("unknown sort %q", s)
	}
	return p, nil
}

// PreviewParams are the query parameters of GET /api/preview.
type PreviewParams struct {
	Target       int64
	Days         int
	Distribution core.Distribution
}

// ParsePreviewParams reads target, days and distribution. The distribution
// defaults to equal.
func ParsePreviewParams(q url.Values) (PreviewParams, error) {
	var p PreviewParams
	target, err := strconv.ParseInt(strings.TrimSpace(q.Get("target")), 10, 64)
	if err != nil {
		return p, fmt.Errorf("%w: target must be an integer", core.ErrInvalidTarget)
	}
	days, err := strconv.Atoi(strings.TrimSpace(q.Get("days")))
	if err != nil {
		return p, fmt.Errorf("%w: days must be an integer", core.ErrInvalidDays)
	}
	p.Target, p.Days, p.Distribution = target, days, core.Equal
	if raw := q.Get("distribution"); raw != "" {
		d, err := core.ParseDistribution(raw)
		if err != nil {
			return p, err
		}
		p.Distribution = d
	}
	return p, nil
}

// ParseEnvelopeID parses a positive envelope id path segment.
func ParseEnvelopeID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid envelope id %q", s)
	}
	return id, nil
}

// PreferredLanguage returns the lang query parameter, else Accept-Language.
func PreferredLanguage(r *http.Request) string {
	if lang := strings.TrimSpace(r.URL.Query().Get("lang")); lang != "" {
		return lang
	}
	return r.Header.Get("Accept-Language")
}
