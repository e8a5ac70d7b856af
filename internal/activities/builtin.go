package activities

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/recordflow/recordflow/pkg/recordflow/domain"
)

// RecordStore is the narrow slice of the record CRUD system the built-in
// activities need. The real implementation lives with the host application.
type RecordStore interface {
	UpdateRecord(ctx context.Context, companyID, tableName, recordID string, fields map[string]any) error
}

// Notifier delivers a notification to a recipient.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// AuditSink receives audit entries produced by workflow steps.
type AuditSink interface {
	Append(ctx context.Context, executionID, entry string) error
}

// RegisterBuiltins wires the stock activities every deployment gets.
func RegisterBuiltins(r *Registry, records RecordStore, notifier Notifier, audit AuditSink) error {
	builtins := []Activity{
		{
			Name:        "validateInput",
			Description: "Checks that the payload under params.data carries the required fields",
			Handler:     validateInput,
		},
		{
			Name:        "updateRecord",
			Description: "Updates fields on a record through the record store",
			Handler:     updateRecordHandler(records),
		},
		{
			Name:        "sendNotification",
			Description: "Sends a notification to a recipient",
			Handler:     sendNotificationHandler(notifier),
		},
		{
			Name:        "createAuditEntry",
			Description: "Appends an audit entry to the execution journal",
			Handler:     createAuditEntryHandler(audit),
		},
	}
	for _, a := range builtins {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}

func validateInput(_ context.Context, params map[string]any) (map[string]any, error) {
	data, _ := params["data"].(map[string]any)

	var errs []any
	if len(data) == 0 {
		errs = append(errs, "data is empty")
	}
	if required, ok := params["required"].([]any); ok {
		for _, f := range required {
			field, ok := f.(string)
			if !ok {
				continue
			}
			if v, present := data[field]; !present || v == nil {
				errs = append(errs, fmt.Sprintf("missing field %q", field))
			}
		}
	}

	return map[string]any{
		"isValid": len(errs) == 0,
		"errors":  errs,
	}, nil
}

func updateRecordHandler(records RecordStore) Handler {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		if records == nil {
			return nil, fmt.Errorf("no record store configured")
		}
		tableName, _ := params["table_name"].(string)
		recordID, _ := params["record_id"].(string)
		companyID, _ := params["company_id"].(string)
		fields, _ := params["fields"].(map[string]any)
		if tableName == "" || recordID == "" {
			return nil, fmt.Errorf("updateRecord requires table_name and record_id")
		}
		if err := records.UpdateRecord(ctx, companyID, tableName, recordID, fields); err != nil {
			return nil, err
		}
		return map[string]any{"updated": true, "record_id": recordID}, nil
	}
}

func sendNotificationHandler(notifier Notifier) Handler {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		if notifier == nil {
			return nil, fmt.Errorf("no notifier configured")
		}
		recipient, _ := params["recipient"].(string)
		subject, _ := params["subject"].(string)
		body, _ := params["body"].(string)
		if recipient == "" {
			return nil, fmt.Errorf("sendNotification requires a recipient")
		}
		if err := notifier.Send(ctx, recipient, subject, body); err != nil {
			return nil, err
		}
		return map[string]any{"sent": true, "recipient": recipient}, nil
	}
}

func createAuditEntryHandler(audit AuditSink) Handler {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		if audit == nil {
			return nil, fmt.Errorf("no audit sink configured")
		}
		executionID, _ := params["execution_id"].(string)
		entry, _ := params["entry"].(string)
		if entry == "" {
			return nil, fmt.Errorf("createAuditEntry requires an entry")
		}
		if err := audit.Append(ctx, executionID, entry); err != nil {
			return nil, err
		}
		return map[string]any{"recorded": true}, nil
	}
}

// LogNotifier writes notifications to the process log. Deployments swap in
// a real channel (email, webhook) by implementing Notifier.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, recipient, subject, body string) error {
	slog.Info("Notification", "recipient", recipient, "subject", subject, "body", body)
	return nil
}

// EventRepo is the subset of the execution event repository the audit sink
// writes through.
type EventRepo interface {
	Save(e *domain.ExecutionEvent) (int64, error)
}

// JournalAuditSink appends audit entries to the execution event journal.
type JournalAuditSink struct {
	Events EventRepo
}

func (s JournalAuditSink) Append(_ context.Context, executionID, entry string) error {
	_, err := s.Events.Save(&domain.ExecutionEvent{
		ExecutionID: executionID,
		Type:        "AUDIT",
		Name:        "createAuditEntry",
		Text:        entry,
	})
	return err
}
