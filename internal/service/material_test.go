package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMaterial(t *testing.T) {
	cases := map[string]string{
		"plastic":    "Plastics",
		"  plastic ": "Plastics",
		"PLASTIC":    "Plastics",
		"glass":      "Glass",
		"Metals":     "Metals",
		"e-waste":    "E-wastes",
		"":           "",
		"   ":        "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeMaterial(in), "input %q", in)
	}
}
