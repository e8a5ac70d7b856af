package controllers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/recordflow/recordflow/internal/engine"
	"github.com/recordflow/recordflow/internal/util"
	"github.com/recordflow/recordflow/pkg/recordflow/domain"
	"github.com/recordflow/recordflow/pkg/recordflow/models"
)

// DefinitionsController serves the workflow definition CRUD endpoints.
// Definitions are immutable: saving an existing slug stores a new version.
type DefinitionsController struct {
	DefinitionRepo engine.DefinitionRepo
}

func NewDefinitionsController(definitionRepo engine.DefinitionRepo) *DefinitionsController {
	return &DefinitionsController{DefinitionRepo: definitionRepo}
}

func (c *DefinitionsController) handleSaveDefinition(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	def, err := models.ParseWorkflowDefinition(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	latest, err := c.DefinitionRepo.LatestVersion(def.Slug)
	if err != nil {
		slog.Error("Failed to look up latest definition version", "slug", def.Slug, "error", err)
		http.Error(w, "failed to save definition", http.StatusInternalServerError)
		return
	}
	version := latest + 1

	row := &domain.WorkflowDefinition{
		Name:       def.Name,
		Slug:       def.Slug,
		Version:    version,
		Definition: string(body),
	}
	if _, err := c.DefinitionRepo.Save(row); err != nil {
		slog.Error("Failed to save definition", "slug", def.Slug, "error", err)
		http.Error(w, "failed to save definition", http.StatusInternalServerError)
		return
	}

	slog.Info("Saved workflow definition", "slug", def.Slug, "version", version)
	util.WriteJSONResponse(w, http.StatusOK, models.SaveDefinitionResponse{Slug: def.Slug, Version: version})
}

func (c *DefinitionsController) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	rows, err := c.DefinitionRepo.FindAll()
	if err != nil {
		slog.Error("Failed to list definitions", "error", err)
		http.Error(w, "failed to list definitions", http.StatusInternalServerError)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, rows)
}

func (c *DefinitionsController) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		http.Error(w, "slug is required", http.StatusBadRequest)
		return
	}
	row, err := c.DefinitionRepo.FindBySlug(slug)
	if err != nil || row == nil {
		http.Error(w, "definition not found", http.StatusNotFound)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, row)
}
