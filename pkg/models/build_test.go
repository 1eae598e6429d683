package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildNormalize(t *testing.T) {
	b := Build{
		ID:     "p1",
		Result: "failure",
		Members: []MemberResult{
			{Combination: Combination{"x": "a"}, Result: "success"},
			{Combination: Combination{"x": "b"}, Result: " Unstable "},
			{Combination: Combination{"x": "c"}, Result: "NOT_BUILT"},
		},
	}

	b.Normalize()

	assert.Equal(t, ResultFailure, b.Result)
	assert.Equal(t, ResultSuccess, b.Members[0].Result)
	assert.Equal(t, ResultUnstable, b.Members[1].Result)
	assert.Equal(t, ResultOther, b.Members[2].Result)
}
