package engrams

import (
	"context"
	"strings"

	"github.com/agentoven/larder/internal/errs"
	"github.com/agentoven/larder/pkg/models"
)

// PipelineLookup resolves a pipeline by name.
type PipelineLookup interface {
	GetByName(ctx context.Context, name string) (*models.Pipeline, error)
}

// LearnRequest is a phrasing to learn together with its worked example.
// Exactly one of CommandType or PipelineName must be set.
type LearnRequest struct {
	Pattern      string             `json:"pattern"`
	CommandType  models.CommandType `json:"command_type,omitempty"`
	PipelineName string             `json:"pipeline_name,omitempty"`
	// ParamMapping maps parameter names to placeholders, e.g.
	// {"itemName": "{item}"}.
	ParamMapping      map[string]string `json:"param_mapping"`
	ExampleInput      string            `json:"example_input"`
	ExampleExtraction map[string]string `json:"example_extraction"`
}

// Learn compiles, proves and saves req. The pattern is only persisted once
// its regex reproduces ExampleExtraction from ExampleInput.
func (s *Store) Learn(ctx context.Context, req LearnRequest, pipelines PipelineLookup) (*models.LearnedUtterance, error) {
	switch {
	case req.CommandType == "" && req.PipelineName == "":
		return nil, errs.Validation("Must provide either command_type or pipeline_name.")
	case req.CommandType != "" && req.PipelineName != "":
		return nil, errs.Validation("Provide command_type OR pipeline_name, not both.")
	}

	compiled, err := Compile(req.Pattern)
	if err != nil {
		return nil, err
	}
	mapping, err := ResolveParamMapping(req.ParamMapping, compiled.CaptureGroups)
	if err != nil {
		return nil, err
	}

	var pipelineID int64
	if req.PipelineName != "" {
		p, err := pipelines.GetByName(ctx, req.PipelineName)
		if err != nil {
			if errs.Is(err, errs.KindNotFound) {
				return nil, errs.NotFound("Create it first with create_pipeline.", "Pipeline %q not found.", req.PipelineName)
			}
			return nil, err
		}
		var missing []string
		for _, name := range p.Params {
			if _, ok := mapping[name]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return nil, errs.Validation("Pipeline expects params [%s] but mapping is missing: %s",
				strings.Join(p.Params, ", "), strings.Join(missing, ", "))
		}
		pipelineID = p.ID
	}

	if err := ValidatePattern(ValidationInput{
		Regex:             compiled.Regex,
		CaptureGroups:     compiled.CaptureGroups,
		CommandType:       req.CommandType,
		ExampleInput:      req.ExampleInput,
		ExampleExtraction: req.ExampleExtraction,
	}); err != nil {
		return nil, err
	}

	u := &models.LearnedUtterance{
		Pattern:           strings.ToLower(strings.TrimSpace(req.Pattern)),
		Regex:             compiled.Regex,
		CommandType:       req.CommandType,
		PipelineID:        pipelineID,
		ParamMapping:      mapping,
		ExampleInput:      req.ExampleInput,
		ExampleExtraction: req.ExampleExtraction,
	}
	if err := s.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
