package main

import (
	"testing"

	"github.com/manishgpt/chat-client/internal/model/persona"
)

func TestEchoRemainder(t *testing.T) {
	cases := []struct {
		name    string
		final   string
		echoed  string
		want    string
		reprint bool
	}{
		{"final extends echoed", "Hi there!", "Hi ther", "e!", false},
		{"final equals echoed", "Hi there!", "Hi there!", "", false},
		{"nothing echoed", "Hi there!", "", "Hi there!", false},
		{"error notice appended", "partial\n\nSorry.", "partial", "\n\nSorry.", false},
		{"final diverges", "A corrected reply", "A diffrent start", "A corrected reply", true},
		{"final shorter than echoed", "Hi", "Hi there", "Hi", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, reprint := echoRemainder(tc.final, tc.echoed)
			if got != tc.want || reprint != tc.reprint {
				t.Errorf("echoRemainder(%q, %q) = (%q, %v), want (%q, %v)",
					tc.final, tc.echoed, got, reprint, tc.want, tc.reprint)
			}
		})
	}
}

func TestFormatPersona(t *testing.T) {
	withDescription := formatPersona(persona.Persona{ID: "ada", Name: "Ada", Description: "mathematician"})
	if withDescription != "  ada  Ada: mathematician" {
		t.Errorf("unexpected listing line: %q", withDescription)
	}

	bare := formatPersona(persona.Persona{ID: "ada", Name: "Ada"})
	if bare != "  ada  Ada" {
		t.Errorf("unexpected listing line: %q", bare)
	}
}
