// Package search provides web search backends for the research agent.
package search

import (
	"iter"

	"github.com/ashureev/classgrade/internal/research"
)

// MaxResults caps the snippets returned per query.
const MaxResults = 5

func sequence(results []research.Snippet, err error) iter.Seq2[research.Snippet, error] {
	return func(yield func(research.Snippet, error) bool) {
		if err != nil {
			yield(research.Snippet{}, err)
			return
		}
		for _, r := range results {
			if !yield(r, nil) {
				return
			}
		}
	}
}
