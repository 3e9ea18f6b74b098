package dispatch

import (
	"errors"
	"testing"

	"shelfscan/internal/services"
)

func TestRequestBuilderProducesImmutableRequest(t *testing.T) {
	b := NewRequest("post", " https://api.example.test/items ").
		Header("X-Zotero-Write-Token", "abc").
		Body("text/plain", []byte("payload")).
		Correlation("addItems").
		Extra("rows", "1,2")
	req, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.Method() != MethodPost || req.Target() != "https://api.example.test/items" {
		t.Fatalf("unexpected method/target: %s %s", req.Method(), req.Target())
	}
	if req.ID() == "" {
		t.Fatal("expected generated ID")
	}

	header := req.Header()
	header["X-Zotero-Write-Token"] = "changed"
	body := req.Body()
	body[0] = 'X'
	extra := req.Extra()
	extra["rows"] = "9"
	b.Header("Late", "1")

	if req.Header()["X-Zotero-Write-Token"] != "abc" || len(req.Header()) != 1 {
		t.Fatalf("header mutated: %v", req.Header())
	}
	if string(req.Body()) != "payload" {
		t.Fatalf("body mutated: %q", req.Body())
	}
	if req.ExtraValue("rows") != "1,2" {
		t.Fatalf("extra mutated: %v", req.Extra())
	}

	again, err := b.Build()
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if again.ID() == req.ID() {
		t.Fatal("expected distinct IDs per Build")
	}
}

func TestRequestBuilderValidates(t *testing.T) {
	cases := map[string]*RequestBuilder{
		"missing target": NewRequest(MethodGet, "  "),
		"bad method":     NewRequest("PATCH", "https://example.test"),
		"bad json":       NewRequest(MethodPost, "https://example.test").JSON(make(chan int)),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := b.Build()
			if !errors.Is(err, ErrInvalidRequest) || !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestOutcomeHelpers(t *testing.T) {
	if Started().Terminal() || Progress(10).Terminal() {
		t.Fatal("started/progress must not be terminal")
	}
	if got := Progress(-5).Percent; got != 0 {
		t.Fatalf("Progress clamps low: %d", got)
	}
	if !Success(nil).Terminal() || !Failure(500, "").Terminal() || !Exception(nil).Terminal() {
		t.Fatal("success/failure/exception must be terminal")
	}
	if Exception(nil).Err == nil {
		t.Fatal("exception must always carry an error")
	}
	var status *services.StatusError
	if err := Failure(404, "").Error(); !errors.As(err, &status) || status.Code != 404 || status.Reason != "Not Found" {
		t.Fatalf("unexpected failure error %v", err)
	}
	if Success(nil).Error() != nil {
		t.Fatal("success carries no error")
	}
}

func TestRoutesPreferExactThenLongestPrefix(t *testing.T) {
	var hit string
	mark := func(name string) Route {
		return Route{OnSuccess: func(Consumer, *Request, []byte) { hit = name }}
	}
	routes := NewRoutes().
		Handle("lookup:special", mark("exact")).
		HandlePrefix("lookup:", mark("short")).
		HandlePrefix("lookup:97", mark("long")).
		Fallback(mark("fallback"))

	for id, want := range map[string]string{
		"lookup:special":       "exact",
		"lookup:9780000000002": "long",
		"lookup:0306406152":    "short",
		"groups":               "fallback",
	} {
		hit = ""
		req, err := NewRequest(MethodGet, "https://example.test").Correlation(id).Build()
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		routes.OnSuccess(nil, req, nil)
		if hit != want {
			t.Fatalf("%s routed to %q, want %q", id, hit, want)
		}
	}
}
