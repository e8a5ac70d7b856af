package models

import "encoding/json"

// TriggerPayload is the decoded change event that starts a workflow run.
// It travels on the notification channel as JSON and is immutable once
// constructed; the dispatcher builds one per event.
type TriggerPayload struct {
	EventType     string         `json:"event_type"`
	TableName     string         `json:"table_name"`
	CompanyID     string         `json:"company_id"`
	RecordID      string         `json:"record_id"`
	NewData       map[string]any `json:"new_data"`
	OldData       map[string]any `json:"old_data"`
	TriggerConfig *TriggerConfig `json:"trigger_config"`
	UserID        string         `json:"user_id"`
	SessionID     string         `json:"session_id"`
}

// TriggerConfig selects the workflow to start; it travels with the event.
type TriggerConfig struct {
	WorkflowSlug string `json:"workflow_slug"`
}

// WorkflowSlug returns the configured slug, or "" when the event carries no
// usable trigger configuration and must be dropped.
func (t *TriggerPayload) WorkflowSlug() string {
	if t.TriggerConfig == nil {
		return ""
	}
	return t.TriggerConfig.WorkflowSlug
}

// AsMap renders the payload as plain JSON-shaped data for state seeding.
func (t *TriggerPayload) AsMap() map[string]any {
	b, err := json.Marshal(t)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]any{}
	}
	return out
}
