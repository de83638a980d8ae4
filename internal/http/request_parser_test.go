package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"envelopes/internal/core"
)

func TestParseCreateChallenge(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    CreateChallengeRequest
		wantErr string
	}{
		{
			name: "full",
			body: `{"target":5000,"days":30,"currency":" eur ","distribution":"RANDOM"}`,
			want: CreateChallengeRequest{Target: 5000, Days: 30, Currency: "EUR", Distribution: "random"},
		},
		{
			name: "defaults",
			body: `{"target":100,"days":10}`,
			want: CreateChallengeRequest{Target: 100, Days: 10, Currency: "RUB", Distribution: "equal"},
		},
		{name: "missing target", body: `{"days":10}`, wantErr: "target is required"},
		{name: "days over max", body: `{"target":100,"days":4000}`, wantErr: "days must satisfy max=3650"},
		{name: "bad distribution", body: `{"target":100,"days":1,"distribution":"x"}`, wantErr: "distribution must be one of"},
		{name: "numeric currency", body: `{"target":100,"days":1,"currency":"123"}`, wantErr: "currency must be an ISO 4217 currency code"},
		{name: "unknown currency", body: `{"target":100,"days":1,"currency":"zzz"}`, wantErr: "currency must be an ISO 4217 currency code"},
		{name: "string target", body: `{"target":"100","days":1}`, wantErr: "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/challenges", strings.NewReader(tt.body))
			got, err := ParseCreateChallenge(req, "RUB")
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeJSON_BodyLimit(t *testing.T) {
	big := `{"target":1,"days":1,"currency":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	var dst CreateChallengeRequest
	if err := DecodeJSON(req, &dst); err == nil {
		t.Error("expected error for oversized body")
	}
}

func TestParseListParams(t *testing.T) {
	tests := []struct {
		query   string
		want    ListParams
		wantErr bool
	}{
		{"", ListParams{core.FilterAll, core.SortByID}, false},
		{"filter=opened", ListParams{core.FilterOpen, core.SortByID}, false},
		{"filter=CLOSED&sort=amount", ListParams{core.FilterClosed, core.SortByAmount}, false},
		{"filter=maybe", ListParams{}, true},
		{"sort=date", ListParams{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			got, err := ParseListParams(q)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseListParams(%q) = %+v, %v; want %+v", tt.query, got, err, tt.want)
			}
		})
	}
}

func TestParsePreviewParams(t *testing.T) {
	tests := []struct {
		query   string
		want    PreviewParams
		wantErr bool
	}{
		{"target=100&days=5", PreviewParams{100, 5, core.Equal}, false},
		{"target=100&days=5&distribution=Progression", PreviewParams{100, 5, core.Progression}, false},
		{"target=1e3&days=5", PreviewParams{}, true},
		{"target=100&days=", PreviewParams{}, true},
		{"target=100&days=5&distribution=steps", PreviewParams{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			got, err := ParsePreviewParams(q)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParsePreviewParams(%q) = %+v, %v; want %+v", tt.query, got, err, tt.want)
			}
		})
	}
}

func TestParseEnvelopeID(t *testing.T) {
	for _, s := range []string{"1", "42"} {
		if _, err := ParseEnvelopeID(s); err != nil {
			t.Errorf("ParseEnvelopeID(%q) err = %v", s, err)
		}
	}
	for _, s := range []string{"0", "-3", "x", ""} {
		if _, err := ParseEnvelopeID(s); err == nil {
			t.Errorf("ParseEnvelopeID(%q) expected error", s)
		}
	}
}

func TestPreferredLanguage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?lang=ru", nil)
	req.Header.Set("Accept-Language", "en-US")
	if got := PreferredLanguage(req); got != "ru" {
		t.Errorf("query should win, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "en-US")
	if got := PreferredLanguage(req); got != "en-US" {
		t.Errorf("header fallback, got %q", got)
	}
}
