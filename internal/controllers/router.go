package controllers

import "net/http"

// RegisterRoutes wires the HTTP routes for this controller.
func (c *DefinitionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/definitions", c.handleSaveDefinition)
	mux.HandleFunc("GET /api/definitions", c.handleListDefinitions)
	mux.HandleFunc("GET /api/definitions/{slug}", c.handleGetDefinition)
}

func (c *ExecutionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/executions", c.handleStartExecution)
	mux.HandleFunc("GET /api/executions/{id}", c.handleGetExecution)
	mux.HandleFunc("GET /api/executions/{id}/events", c.handleGetExecutionEvents)
	mux.HandleFunc("GET /api/executions/byWorkflow/{slug}", c.handleGetExecutionsByWorkflow)
}

func (c *TasksController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tasks/{id}", c.handleGetTask)
	mux.HandleFunc("GET /api/tasks/byAssignee/{assignee}", c.handleGetTasksByAssignee)
	mux.HandleFunc("POST /api/tasks/{id}/complete", c.handleCompleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/cancel", c.handleCancelTask)
}
