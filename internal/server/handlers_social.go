package server

import (
	"net/http"

	"github.com/innowave/analytiqa/internal/model"
)

type commentBody struct {
	Comments string `json:"comments"`
}

func commentTarget(w http.ResponseWriter, r *http.Request) (model.Target, bool) {
	kind, err := model.ParseTargetKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return model.Target{}, false
	}
	id, ok := pathInt(w, r, "id")
	if !ok {
		return model.Target{}, false
	}
	return model.Target{Kind: kind, ID: id}, true
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	target, ok := commentTarget(w, r)
	if !ok {
		return
	}
	comments, err := s.portal.ListComments(r.Context(), target)
	if err != nil {
		fail(w, err)
		return
	}
	if comments == nil {
		comments = []model.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	target, ok := commentTarget(w, r)
	if !ok {
		return
	}
	var body commentBody
	if !decode(w, r, &body) {
		return
	}
	c, err := s.portal.AddComment(r.Context(), user, target, body.Comments)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var body commentBody
	if !decode(w, r, &body) {
		return
	}
	c, err := s.portal.UpdateComment(r.Context(), user, id, body.Comments)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if err := s.portal.DeleteComment(r.Context(), user, id); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// notificationView adds the client route of the target.
type notificationView struct {
	model.Notification
	Path string `json:"path"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	unread := r.URL.Query().Get("unread") == "true"
	ns, err := s.portal.Notifications(r.Context(), user, unread)
	if err != nil {
		fail(w, err)
		return
	}
	out := make([]notificationView, 0, len(ns))
	for _, n := range ns {
		out = append(out, notificationView{Notification: n, Path: n.Path()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if err := s.portal.MarkRead(r.Context(), user, id); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	n, err := s.portal.ClearNotifications(r.Context(), user)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
