package querycache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Machine Learning", want: "machine learning"},
		{in: "  padded  ", want: "padded"},
		{in: "tabs\tand\nnewlines", want: "tabs and newlines"},
		{in: "many     spaces   here", want: "many spaces here"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeQuery(tt.in), "input %q", tt.in)
	}
}

func TestHashQueryIsStableAcrossEquivalentQueries(t *testing.T) {
	groups := [][]string{
		{"machine learning", "Machine Learning", "  machine   learning ", "MACHINE\tLEARNING"},
		{"github.com", "GitHub.com", " github.com\n"},
	}

	for _, group := range groups {
		want := HashQuery(group[0])
		assert.Len(t, want, 64)
		for _, q := range group[1:] {
			assert.Equal(t, want, HashQuery(q), "query %q", q)
		}
	}

	assert.NotEqual(t, HashQuery("machine learning"), HashQuery("machinelearning"))
}

func TestHashQueryKnownDigest(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashQuery(" ABC "))
}
