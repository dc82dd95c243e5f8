package connector

import (
	"context"

	"github.com/medicalexcom/avidiatech-match/internal/model"
	"github.com/medicalexcom/avidiatech-match/internal/supplier"
)

const patternBaseConfidence = 0.5

// Pattern emits one candidate per template whose key value is non-empty.
type Pattern struct {
	patterns []supplier.Pattern
}

// NewPattern creates a pattern connector.
func NewPattern(patterns []supplier.Pattern) *Pattern {
	return &Pattern{patterns: patterns}
}

// Method implements Connector.
func (p *Pattern) Method() model.Method { return model.MethodPattern }

// ResolveCandidates implements Connector.
func (p *Pattern) ResolveCandidates(_ context.Context, in Input) (*Result, error) {
	res := &Result{}
	for _, pat := range p.patterns {
		v := keyValue(pat.Key, in.Key)
		if v == "" {
			continue
		}
		res.Candidates = append(res.Candidates,
			newCandidate(expand(pat.Template, v), model.MethodPattern, patternBaseConfidence, "template:"+string(pat.Key)))
	}
	return res, nil
}
