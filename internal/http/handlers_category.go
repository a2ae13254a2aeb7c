package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"tally/internal/core"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	cats, err := s.repo.ListCategories(r.Context(), user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "category listing failed",
			"user_id", user.ID, "error", err)
		InternalServerError("Could not load categories").Write(w)
		return
	}

	s.render(w, r, "categories.html", map[string]any{
		"Username": user.Username,
		"Cats":     cats,
	})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	c := core.Category{
		Name:  sanitizeInput(r.Form.Get("name")),
		Icon:  sanitizeInput(r.Form.Get("icon")),
		Color: sanitizeInput(r.Form.Get("color")),
	}
	if v := r.Form.Get("sort_order"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SortOrder = n
		}
	}
	if err := c.Validate(); err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	created, err := s.repo.CreateCategory(r.Context(), user.ID, c)
	if err != nil {
		slog.ErrorContext(r.Context(), "category creation failed",
			"user_id", user.ID, "error", err)
		InternalServerError("Could not create the category").Write(w)
		return
	}

	NewHTMXResponse().
		TriggerCategoryChanged().
		TriggerFormReset().
		TriggerSuccessNotification("Category created: " + created.Name).
		Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		NotFoundError("Category not found").Write(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	c := core.Category{
		ID:    id,
		Name:  sanitizeInput(r.Form.Get("name")),
		Icon:  sanitizeInput(r.Form.Get("icon")),
		Color: sanitizeInput(r.Form.Get("color")),
	}
	if v := r.Form.Get("sort_order"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SortOrder = n
		}
	}
	if err := c.Validate(); err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	if err := s.repo.UpdateCategory(r.Context(), user.ID, c); err != nil {
		// Shared defaults come back as not-found; they are not user-mutable.
		if errors.Is(err, core.ErrNotFound) {
			NotFoundError("Category not found").Write(w)
			return
		}
		slog.ErrorContext(r.Context(), "category update failed",
			"user_id", user.ID, "category_id", id, "error", err)
		InternalServerError("Could not update the category").Write(w)
		return
	}

	NewHTMXResponse().
		TriggerCategoryChanged().
		TriggerSuccessNotification("Category updated").
		Write(w)
}

// handleDeleteCategory removes a user-owned category. Its expenses survive
// and show up as Uncategorized from then on.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		NotFoundError("Category not found").Write(w)
		return
	}

	if err := s.repo.DeleteCategory(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			NotFoundError("Category not found").Write(w)
			return
		}
		slog.ErrorContext(r.Context(), "category deletion failed",
			"user_id", user.ID, "category_id", id, "error", err)
		InternalServerError("Could not delete the category").Write(w)
		return
	}

	NewHTMXResponse().
		TriggerCategoryChanged().
		TriggerSuccessNotification("Category deleted").
		Write(w)
}
