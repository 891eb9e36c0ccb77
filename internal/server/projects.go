package server

import (
	"errors"
	"net/http"

	"github.com/neuralinbox/neuralinbox/internal/storage"
	"github.com/neuralinbox/neuralinbox/internal/types"
)

type projectResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
	ItemCount int64  `json:"item_count"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) projectResponse(r *http.Request, p *types.Project) (projectResponse, error) {
	count, err := s.store.CountProjectItems(r.Context(), p.ID, p.UserID)
	if err != nil {
		return projectResponse{}, err
	}
	return projectResponse{
		ID:        p.ID,
		Name:      p.Name,
		Color:     p.Color,
		Emoji:     p.Emoji,
		ItemCount: count,
		CreatedAt: p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}, nil
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context(), userID(r))
	if err != nil {
		writeStoreError(w, err, "Project not found")
		return
	}

	out := []projectResponse{}
	for _, p := range projects {
		resp, err := s.projectResponse(r, p)
		if err != nil {
			writeStoreError(w, err, "Project not found")
			return
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": out, "total": len(out)})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	var body struct {
		Name  string `json:"name"`
		Color string `json:"color"`
		Emoji string `json:"emoji"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if existing, err := s.store.GetProjectByName(r.Context(), body.Name, uid); err == nil && existing != nil {
		writeError(w, http.StatusBadRequest, "Project '"+body.Name+"' already exists")
		return
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeStoreError(w, err, "Project not found")
		return
	}

	project, err := s.store.CreateProject(r.Context(), &types.Project{
		UserID: uid,
		Name:   body.Name,
		Color:  body.Color,
		Emoji:  body.Emoji,
	})
	if err != nil {
		writeStoreError(w, err, "Project not found")
		return
	}

	resp, err := s.projectResponse(r, project)
	if err != nil {
		writeStoreError(w, err, "Project not found")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "projectID")
	if id == 0 {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}

	project, err := s.store.GetProject(r.Context(), id, userID(r))
	if err != nil {
		writeStoreError(w, err, "Project not found")
		return
	}

	resp, err := s.projectResponse(r, project)
	if err != nil {
		writeStoreError(w, err, "Project not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "projectID")
	if id == 0 {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	uid := userID(r)

	var body struct {
		Name  *string `json:"name"`
		Color *string `json:"color"`
		Emoji *string `json:"emoji"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if body.Name != nil {
		existing, err := s.store.GetProjectByName(r.Context(), *body.Name, uid)
		if err == nil && existing != nil && existing.ID != id {
			writeError(w, http.StatusBadRequest, "Project '"+*body.Name+"' already exists")
			return
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			writeStoreError(w, err, "Project not found")
			return
		}
	}

	project, err := s.store.UpdateProject(r.Context(), id, uid, storage.ProjectUpdate{
		Name:  body.Name,
		Color: body.Color,
		Emoji: body.Emoji,
	})
	if err != nil {
		writeStoreError(w, err, "Project not found")
		return
	}

	resp, err := s.projectResponse(r, project)
	if err != nil {
		writeStoreError(w, err, "Project not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteProject removes the project after detaching its items, so they
// survive as project-less records.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "projectID")
	if id == 0 {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	uid := userID(r)

	if _, err := s.store.MoveProjectItems(r.Context(), id, nil, uid); err != nil {
		writeStoreError(w, err, "Project not found")
		return
	}

	deleted, err := s.store.DeleteProject(r.Context(), id, uid)
	if err != nil {
		writeStoreError(w, err, "Project not found")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Project deleted"})
}
