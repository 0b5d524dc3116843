// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pdiddy/deep-research/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		query string
		want  types.Domain
	}{
		{"What is photosynthesis?", types.DomainKnowledge},
		{"history of the roman empire", types.DomainKnowledge},
		{"best hiking boots", types.DomainGeneral},
		{"", types.DomainGeneral},
		{"arxiv transformers", types.DomainAcademic},
		{"a research paper", types.DomainAcademic},
		{"deep learning methodology", types.DomainAcademic},
		{"quantum", types.DomainGeneral},
		{"python library for docker", types.DomainCode},
		{"rapid prototyping", types.DomainGeneral},
		{"latest election results", types.DomainNews},
		{"Breaking: launch delayed", types.DomainNews},
		{"explain the latest machine learning research", types.DomainKnowledge | types.DomainNews | types.DomainAcademic},
		{"how does a golang api framework handle errors", types.DomainKnowledge | types.DomainCode},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := Classifier{}.Classify(tt.query)
			assert.Equal(t, tt.want, got, "got %s want %s", got, tt.want)
		})
	}
}

func TestClassifyNeverEmpty(t *testing.T) {
	for _, q := range []string{"", "???", "x", "日本語のクエリ"} {
		assert.NotZero(t, Classifier{}.Classify(q), q)
	}
}

func TestTokenize(t *testing.T) {
	tok := tokenize("what's c++ in the neural-network era?")
	assert.True(t, tok.set["c++"])
	assert.True(t, tok.set["neural-network"])
	assert.True(t, tok.has("the neural-network"))
	assert.False(t, tok.has("api"))
}
