package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-floorplan/internal/audit"
	"github.com/nerrad567/gray-logic-floorplan/internal/floorplan"
)

// handleGetWidget returns a widget configuration.
func (s *Server) handleGetWidget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	widget, err := s.repo.GetWidget(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, err, "widget")
		return
	}
	writeJSON(w, http.StatusOK, widget)
}

// handlePutWidget creates or replaces a widget configuration. The ID in the
// path wins over any ID in the body.
func (s *Server) handlePutWidget(w http.ResponseWriter, r *http.Request) {
	var widget floorplan.WidgetConfig
	if err := json.NewDecoder(r.Body).Decode(&widget); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	widget.ID = chi.URLParam(r, "id")

	if err := s.repo.SaveWidget(r.Context(), &widget); err != nil {
		s.writeRepoError(w, err, "widget")
		return
	}
	s.logger.Info("widget saved", "widget_id", widget.ID, "building_id", widget.BuildingID)
	s.recordChange(r, audit.ActionUpdate, audit.EntityWidget, widget.ID, map[string]any{
		"building_id": widget.BuildingID,
		"thresholds":  len(widget.Thresholds),
	})

	saved, err := s.repo.GetWidget(r.Context(), widget.ID)
	if err != nil {
		s.writeRepoError(w, err, "widget")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleDeleteWidget removes a widget configuration. Open sessions of the
// widget keep running until they close.
func (s *Server) handleDeleteWidget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.repo.DeleteWidget(r.Context(), id); err != nil {
		s.writeRepoError(w, err, "widget")
		return
	}
	s.logger.Info("widget deleted", "widget_id", id)
	s.recordChange(r, audit.ActionDelete, audit.EntityWidget, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleListBuildings returns all buildings without their levels.
func (s *Server) handleListBuildings(w http.ResponseWriter, r *http.Request) {
	buildings, err := s.repo.ListBuildings(r.Context())
	if err != nil {
		s.writeRepoError(w, err, "building")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"buildings": buildings,
		"count":     len(buildings),
	})
}

// handleGetBuilding returns a building with its levels and markers.
func (s *Server) handleGetBuilding(w http.ResponseWriter, r *http.Request) {
	building, err := s.repo.GetBuilding(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeRepoError(w, err, "building")
		return
	}
	writeJSON(w, http.StatusOK, building)
}

// handlePutBuilding creates or replaces a building and all of its levels.
// Open sessions keep the building they mounted.
func (s *Server) handlePutBuilding(w http.ResponseWriter, r *http.Request) {
	var building floorplan.Building
	if err := json.NewDecoder(r.Body).Decode(&building); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	building.ID = chi.URLParam(r, "id")

	if err := s.repo.SaveBuilding(r.Context(), &building); err != nil {
		s.writeRepoError(w, err, "building")
		return
	}
	s.logger.Info("building saved", "building_id", building.ID, "levels", len(building.Levels))
	s.recordChange(r, audit.ActionUpdate, audit.EntityBuilding, building.ID, map[string]any{
		"levels": len(building.Levels),
	})

	saved, err := s.repo.GetBuilding(r.Context(), building.ID)
	if err != nil {
		s.writeRepoError(w, err, "building")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleDeleteBuilding removes a building together with its widgets.
func (s *Server) handleDeleteBuilding(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.repo.DeleteBuilding(r.Context(), id); err != nil {
		s.writeRepoError(w, err, "building")
		return
	}
	s.logger.Info("building deleted", "building_id", id)
	s.recordChange(r, audit.ActionDelete, audit.EntityBuilding, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// writeRepoError maps configuration store errors to HTTP responses.
func (s *Server) writeRepoError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, floorplan.ErrWidgetNotFound), errors.Is(err, floorplan.ErrBuildingNotFound):
		writeNotFound(w, what+" not found")
	case errors.Is(err, floorplan.ErrInvalidWidget),
		errors.Is(err, floorplan.ErrInvalidBuilding),
		errors.Is(err, floorplan.ErrInvalidThreshold):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error("configuration store error", "entity", what, "error", err)
		writeInternalError(w, "failed to access "+what)
	}
}
