package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const approvalWorkflowJSON = `{
  "name": "Invoice Approval",
  "slug": "invoice-approval",
  "version": 1,
  "initialStep": "validate",
  "steps": {
    "validate": {
      "type": "activity",
      "activity": "validateInput",
      "params": {"data": "{{trigger.new_data}}"},
      "outputPath": "validation",
      "onSuccess": "checkAmount",
      "onError": "done",
      "retryPolicy": {"maxAttempts": 3, "initialInterval": "1s"}
    },
    "checkAmount": {
      "type": "condition",
      "expr": "{{trigger.new_data.amount}} > 1000",
      "onTrue": "review",
      "onFalse": "done"
    },
    "review": {
      "type": "userTask",
      "assignee": "{{trigger.user_id}}",
      "taskType": "approval",
      "timeout": "7d",
      "outputPath": "review",
      "onSuccess": "fanout",
      "onTimeout": "done"
    },
    "fanout": {
      "type": "parallel",
      "waitFor": "all",
      "outputPath": "fanout",
      "onSuccess": "pause",
      "branches": {
        "notify": {
          "initialStep": "send",
          "steps": {
            "send": {"type": "activity", "activity": "sendNotification", "onSuccess": "stop"},
            "stop": {"type": "end"}
          }
        }
      }
    },
    "pause": {"type": "delay", "duration": "30s", "onSuccess": "done"},
    "done": {"type": "end"}
  }
}`

func TestParseWorkflowDefinition_FullGraph(t *testing.T) {
	def, err := ParseWorkflowDefinition([]byte(approvalWorkflowJSON))
	require.NoError(t, err)
	assert.Equal(t, "invoice-approval", def.Slug)
	assert.Equal(t, "validate", def.InitialStep)
	assert.Len(t, def.Steps, 6)

	act, ok := def.Steps["validate"].(*ActivityStep)
	require.True(t, ok)
	assert.Equal(t, "validateInput", act.Name)
	assert.Equal(t, 3, act.Retry.MaxAttempts)

	cond, ok := def.Steps["checkAmount"].(*ConditionStep)
	require.True(t, ok)
	assert.Equal(t, "review", cond.OnTrue)

	task, ok := def.Steps["review"].(*UserTaskStep)
	require.True(t, ok)
	assert.Equal(t, "7d", task.Timeout)

	par, ok := def.Steps["fanout"].(*ParallelStep)
	require.True(t, ok)
	assert.Equal(t, WaitAll, par.WaitFor)
	require.Contains(t, par.Branches, "notify")
	assert.Equal(t, "send", par.Branches["notify"].InitialStep)

	_, ok = def.Steps["done"].(*EndStep)
	assert.True(t, ok)
}

func TestDecodeStep_MissingDiscriminator(t *testing.T) {
	_, err := DecodeStep([]byte(`{"activity": "x"}`))
	assert.ErrorContains(t, err, "type discriminator")
}

func TestDecodeStep_UnknownType(t *testing.T) {
	_, err := DecodeStep([]byte(`{"type": "subroutine"}`))
	assert.ErrorContains(t, err, "unknown step type")
}

func TestDecodeStep_KindFieldValidation(t *testing.T) {
	cases := map[string]string{
		`{"type":"activity"}`:                                 "activity name",
		`{"type":"condition","onTrue":"a"}`:                   "expr",
		`{"type":"condition","expr":"1 > 0"}`:                 "onTrue and onFalse",
		`{"type":"parallel"}`:                                 "branch",
		`{"type":"userTask"}`:                                 "assignee",
		`{"type":"userTask","assignee":"a","timeout":"soon"}`: "timeout",
		`{"type":"delay","duration":"bogus"}`:                 "duration",
		`{"type":"parallel","branches":{"b":{"initialStep":"s","steps":{"s":{"type":"end"}}}},"waitFor":"most"}`: "waitFor",
		`{"type":"activity","activity":"x","retryPolicy":{"maxAttempts":0}}`:                                     "maxAttempts",
	}
	for in, wantSubstr := range cases {
		_, err := DecodeStep([]byte(in))
		assert.ErrorContains(t, err, wantSubstr, in)
	}
}

func TestStepSet_RoundTrip(t *testing.T) {
	def, err := ParseWorkflowDefinition([]byte(approvalWorkflowJSON))
	require.NoError(t, err)

	b, err := json.Marshal(def)
	require.NoError(t, err)

	again, err := ParseWorkflowDefinition(b)
	require.NoError(t, err)
	assert.Equal(t, def.Steps["validate"], again.Steps["validate"])
	assert.Equal(t, def.Steps["fanout"], again.Steps["fanout"])
}

func TestValidate_RoutingTargetMustExist(t *testing.T) {
	def := &WorkflowDefinition{
		Slug:        "w",
		InitialStep: "a",
		Steps: StepSet{
			"a": &ActivityStep{Name: "x", OnSuccess: "ghost"},
		},
	}
	err := def.Validate()
	assert.ErrorContains(t, err, `unknown step "ghost"`)
}

func TestValidate_InitialStepMustExist(t *testing.T) {
	def := &WorkflowDefinition{
		Slug:        "w",
		InitialStep: "nope",
		Steps:       StepSet{"a": &EndStep{}},
	}
	err := def.Validate()
	assert.ErrorContains(t, err, "initial step")
}

func TestValidate_TerminalSentinelIsAllowed(t *testing.T) {
	def := &WorkflowDefinition{
		Slug:        "w",
		InitialStep: "a",
		Steps: StepSet{
			"a": &ActivityStep{Name: "x"},
		},
	}
	assert.NoError(t, def.Validate())
}

func TestValidate_BranchGraphsAreChecked(t *testing.T) {
	def := &WorkflowDefinition{
		Slug:        "w",
		InitialStep: "p",
		Steps: StepSet{
			"p": &ParallelStep{
				Branches: map[string]*SubGraph{
					"b": {InitialStep: "missing", Steps: StepSet{"s": &EndStep{}}},
				},
				WaitFor: WaitAll,
			},
		},
	}
	err := def.Validate()
	assert.ErrorContains(t, err, "initial step")
}
