package models

import (
	"encoding/json"
	"fmt"
)

// StepType discriminates the step variants in workflow JSON.
type StepType string

const (
	StepTypeActivity  StepType = "activity"
	StepTypeCondition StepType = "condition"
	StepTypeParallel  StepType = "parallel"
	StepTypeUserTask  StepType = "userTask"
	StepTypeDelay     StepType = "delay"
	StepTypeEnd       StepType = "end"
)

// TerminalStep is the sentinel routing target meaning "stop the run".
// An empty onSuccess on an activity routes here.
const TerminalStep = ""

// WaitMode controls how a parallel step joins its branches.
type WaitMode string

const (
	WaitAll WaitMode = "all"
	WaitAny WaitMode = "any"
)

// Step is the closed union of workflow step kinds. Each variant carries only
// the fields its kind needs; field presence is enforced when the definition
// JSON is decoded, not at dispatch time.
type Step interface {
	StepType() StepType
	// RoutingTargets lists every step name this step can route to, for
	// definition validation. The terminal sentinel is omitted.
	RoutingTargets() []string
}

type ActivityStep struct {
	Name       string         `json:"activity"`
	Params     map[string]any `json:"params,omitempty"`
	OutputPath string         `json:"outputPath,omitempty"`
	OnSuccess  string         `json:"onSuccess,omitempty"`
	OnError    string         `json:"onError,omitempty"`
	Retry      *RetryPolicy   `json:"retryPolicy,omitempty"`
}

type ConditionStep struct {
	Expr    string `json:"expr"`
	OnTrue  string `json:"onTrue"`
	OnFalse string `json:"onFalse"`
}

type ParallelStep struct {
	Branches   map[string]*SubGraph `json:"branches"`
	WaitFor    WaitMode             `json:"waitFor,omitempty"`
	OutputPath string               `json:"outputPath,omitempty"`
	OnSuccess  string               `json:"onSuccess,omitempty"`
	OnError    string               `json:"onError,omitempty"`
}

type UserTaskStep struct {
	Assignee   string         `json:"assignee"`
	TaskType   string         `json:"taskType,omitempty"`
	Form       map[string]any `json:"form,omitempty"`
	Timeout    string         `json:"timeout,omitempty"`
	OutputPath string         `json:"outputPath,omitempty"`
	OnSuccess  string         `json:"onSuccess,omitempty"`
	OnTimeout  string         `json:"onTimeout,omitempty"`
	OnError    string         `json:"onError,omitempty"`
}

type DelayStep struct {
	Duration  string `json:"duration"`
	OnSuccess string `json:"onSuccess,omitempty"`
}

type EndStep struct{}

// SubGraph is the step graph of one parallel branch, interpreted by a nested
// run with its own step budget.
type SubGraph struct {
	InitialStep string  `json:"initialStep"`
	Steps       StepSet `json:"steps"`
}

func (s *ActivityStep) StepType() StepType  { return StepTypeActivity }
func (s *ConditionStep) StepType() StepType { return StepTypeCondition }
func (s *ParallelStep) StepType() StepType  { return StepTypeParallel }
func (s *UserTaskStep) StepType() StepType  { return StepTypeUserTask }
func (s *DelayStep) StepType() StepType     { return StepTypeDelay }
func (s *EndStep) StepType() StepType       { return StepTypeEnd }

func (s *ActivityStep) RoutingTargets() []string {
	return targets(s.OnSuccess, s.OnError)
}
func (s *ConditionStep) RoutingTargets() []string {
	return targets(s.OnTrue, s.OnFalse)
}
func (s *ParallelStep) RoutingTargets() []string {
	return targets(s.OnSuccess, s.OnError)
}
func (s *UserTaskStep) RoutingTargets() []string {
	return targets(s.OnSuccess, s.OnTimeout, s.OnError)
}
func (s *DelayStep) RoutingTargets() []string {
	return targets(s.OnSuccess)
}
func (s *EndStep) RoutingTargets() []string { return nil }

func targets(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != TerminalStep {
			out = append(out, n)
		}
	}
	return out
}

// StepSet is the name -> step mapping of a workflow graph.
type StepSet map[string]Step

func (ss *StepSet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(StepSet, len(raw))
	for name, msg := range raw {
		step, err := DecodeStep(msg)
		if err != nil {
			return fmt.Errorf("step %q: %w", name, err)
		}
		out[name] = step
	}
	*ss = out
	return nil
}

func (ss StepSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(ss))
	for name, step := range ss {
		b, err := EncodeStep(step)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", name, err)
		}
		out[name] = b
	}
	return json.Marshal(out)
}

// DecodeStep parses one step object, dispatching on the mandatory "type"
// discriminator and enforcing the fields its kind requires.
func DecodeStep(data []byte) (Step, error) {
	var head struct {
		Type StepType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case StepTypeActivity:
		var s ActivityStep
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		if s.Name == "" {
			return nil, fmt.Errorf("activity step requires an activity name")
		}
		if s.Retry != nil {
			if err := s.Retry.Validate(); err != nil {
				return nil, err
			}
		}
		return &s, nil
	case StepTypeCondition:
		var s ConditionStep
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		if s.Expr == "" {
			return nil, fmt.Errorf("condition step requires an expr")
		}
		if s.OnTrue == TerminalStep || s.OnFalse == TerminalStep {
			return nil, fmt.Errorf("condition step requires onTrue and onFalse")
		}
		return &s, nil
	case StepTypeParallel:
		var s ParallelStep
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		if len(s.Branches) == 0 {
			return nil, fmt.Errorf("parallel step requires at least one branch")
		}
		if s.WaitFor == "" {
			s.WaitFor = WaitAll
		}
		if s.WaitFor != WaitAll && s.WaitFor != WaitAny {
			return nil, fmt.Errorf("parallel waitFor must be %q or %q", WaitAll, WaitAny)
		}
		return &s, nil
	case StepTypeUserTask:
		var s UserTaskStep
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		if s.Assignee == "" {
			return nil, fmt.Errorf("userTask step requires an assignee")
		}
		if s.Timeout != "" {
			if _, err := ParseDuration(s.Timeout); err != nil {
				return nil, fmt.Errorf("userTask timeout: %w", err)
			}
		}
		return &s, nil
	case StepTypeDelay:
		var s DelayStep
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		if _, err := ParseDuration(s.Duration); err != nil {
			return nil, fmt.Errorf("delay duration: %w", err)
		}
		return &s, nil
	case StepTypeEnd:
		return &EndStep{}, nil
	case "":
		return nil, fmt.Errorf("step is missing the type discriminator")
	}
	return nil, fmt.Errorf("unknown step type %q", head.Type)
}

// EncodeStep renders a step back to JSON with its type discriminator.
func EncodeStep(s Step) (json.RawMessage, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["type"] = string(s.StepType())
	return json.Marshal(fields)
}
