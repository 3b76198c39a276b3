package http

import (
	"fmt"
	"net/http"

	"fintrack/internal/core"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	key := s.userCachePrefix(userID) + "overview"
	if overview, ok := s.overviewCache.Get(key); ok {
		writeJSON(w, http.StatusOK, overview)
		return
	}

	overview, err := s.dashboards.Overview(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.overviewCache.Set(key, overview)
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	year, month, err := parseMonthParams(r.URL.Query())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	key := fmt.Sprintf("%scalendar:%04d-%02d", s.userCachePrefix(userID), year, month)
	if days, ok := s.calendarCache.Get(key); ok {
		writeJSON(w, http.StatusOK, calendarPayload(year, month, days))
		return
	}

	if _, err := s.users.GetUser(r.Context(), userID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	days, err := s.dashboards.Calendar(r.Context(), userID, year, month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.calendarCache.Set(key, days)
	writeJSON(w, http.StatusOK, calendarPayload(year, month, days))
}

func calendarPayload(year, month int, days []core.DayActivity) map[string]any {
	if days == nil {
		days = []core.DayActivity{}
	}
	return map[string]any{
		"year":  year,
		"month": month,
		"days":  days,
	}
}
