package service

import (
	"fmt"
	"strings"

	"github.com/dpshade/pocket-capsules/internal/compat"
	"github.com/dpshade/pocket-capsules/internal/errors"
	"github.com/dpshade/pocket-capsules/internal/models"
)

// PortRef names a port on a catalog capsule. An empty Port picks the
// capsule's first port in the relevant direction.
type PortRef struct {
	Capsule string `json:"capsule"`
	Port    string `json:"port,omitempty"`
}

// ParsePortRef splits "capsule.port". The port part is optional; capsule ids
// never contain a dot.
func ParsePortRef(s string) PortRef {
	capsule, port, _ := strings.Cut(strings.TrimSpace(s), ".")
	return PortRef{Capsule: capsule, Port: port}
}

// ConnectionCheck is the outcome of wiring one capsule's output to another's input
type ConnectionCheck struct {
	From       PortRef     `json:"from"`
	To         PortRef     `json:"to"`
	Output     models.Port `json:"output"`
	Input      models.Port `json:"input"`
	Compatible bool        `json:"compatible"`
	Reason     string      `json:"reason,omitempty"`
}

// CheckConnection resolves both ports and reports whether they can be wired.
// An incompatible pair is a normal result, not an error.
func (s *Service) CheckConnection(from, to PortRef) (*ConnectionCheck, error) {
	source, err := s.GetCapsule(from.Capsule)
	if err != nil {
		return nil, err
	}
	target, err := s.GetCapsule(to.Capsule)
	if err != nil {
		return nil, err
	}

	output, err := pickPort(source, from.Port, source.Outputs, source.Output, "output")
	if err != nil {
		return nil, err
	}
	input, err := pickPort(target, to.Port, target.Inputs, target.Input, "input")
	if err != nil {
		return nil, err
	}

	check := &ConnectionCheck{
		From:       PortRef{Capsule: source.ID, Port: output.ID},
		To:         PortRef{Capsule: target.ID, Port: input.ID},
		Output:     output,
		Input:      input,
		Compatible: compat.CanConnect(output, input),
	}
	if !check.Compatible {
		check.Reason = errors.IncompatibleError(output.Type, input.Type).Message
	}
	return check, nil
}

func pickPort(c *models.Capsule, id string, ports []models.Port, lookup func(string) (models.Port, bool), kind string) (models.Port, error) {
	if id == "" {
		if len(ports) == 0 {
			return models.Port{}, errors.NewAppError(errors.ErrCodeInvalidInput,
				fmt.Sprintf("Capsule '%s' has no %s ports", c.ID, kind))
		}
		return ports[0], nil
	}
	port, ok := lookup(id)
	if !ok {
		return models.Port{}, errors.NotFoundError(fmt.Sprintf("%s port '%s' on capsule '%s'", kind, id, c.ID))
	}
	return port, nil
}

// Suggestions lists what can follow a producer of one data type
type Suggestions struct {
	Type      compat.DataType   `json:"type"`
	Targets   []compat.DataType `json:"targets"`
	Suggested []*models.Capsule `json:"suggested"`
	Accepting []*models.Capsule `json:"accepting"`
}

// SuggestConnectable returns the curated follow-up capsules for typeName
// together with every catalog capsule that has an input accepting it.
func (s *Service) SuggestConnectable(typeName string) (*Suggestions, error) {
	t, ok := compat.Parse(typeName)
	if !ok {
		return nil, errors.NewAppError(errors.ErrCodeInvalidInput, fmt.Sprintf("Unknown data type '%s'", typeName)).
			WithContext("known_types", compat.TypeNames())
	}

	cat := s.Catalog()
	out := &Suggestions{
		Type:      t,
		Targets:   compat.CompatibleTargets(t),
		Suggested: []*models.Capsule{},
	}

	for _, id := range compat.SuggestNextCapsules(t) {
		if capsule, ok := cat.Get(id); ok {
			out.Suggested = append(out.Suggested, capsule)
		}
	}

	producer := models.Port{Type: string(t)}
	out.Accepting = cat.AcceptingInput(func(in models.Port) bool {
		return compat.CanConnect(producer, in)
	})
	if out.Accepting == nil {
		out.Accepting = []*models.Capsule{}
	}
	return out, nil
}
