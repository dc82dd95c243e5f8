package connector

import (
	"context"

	"github.com/medicalexcom/avidiatech-match/internal/model"
)

// Generic proposes nothing. It is the fallback for unconfigured suppliers.
type Generic struct{}

// Method implements Connector.
func (Generic) Method() model.Method { return model.MethodOther }

// ResolveCandidates implements Connector.
func (Generic) ResolveCandidates(context.Context, Input) (*Result, error) {
	return &Result{}, nil
}
