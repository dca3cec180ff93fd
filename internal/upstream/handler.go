package upstream

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"lms-quiz-engine/internal/domain"
)

// Handler exposes the fake upstream over the same REST routes RESTClient
// expects, so the client can be exercised end to end without a real LMS.
func (f *Fake) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/lessons/", f.handleLessons)
	mux.HandleFunc("/quizzes/", f.handleQuizzes)
	mux.HandleFunc("/attempts", f.handleCreateAttempt)
	mux.HandleFunc("/attempts/", f.handleSubmitAttempt)
	mux.HandleFunc("/learners/", f.handleLearnerStatistics)
	return mux
}

func (f *Fake) handleLessons(w http.ResponseWriter, r *http.Request) {
	// /lessons/{id}/quizzes
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[2] != "quizzes" {
		http.NotFound(w, r)
		return
	}
	quizzes, err := f.LessonQuizzes(r.Context(), parts[1])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, quizzes)
}

func (f *Fake) handleQuizzes(w http.ResponseWriter, r *http.Request) {
	// /quizzes/{id}/questions
	// /quizzes/{id}/attempts/active?learnerId=
	// /quizzes/{id}/attempts?learnerId=
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 {
		http.NotFound(w, r)
		return
	}
	quizID := parts[1]
	switch {
	case len(parts) == 3 && parts[2] == "questions":
		questions, err := f.QuizQuestions(r.Context(), quizID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, questions)
	case len(parts) == 4 && parts[2] == "attempts" && parts[3] == "active":
		attempt, ok, err := f.ActiveAttempt(r.Context(), quizID, r.URL.Query().Get("learnerId"))
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			http.Error(w, "no active attempt", http.StatusNotFound)
			return
		}
		writeJSON(w, attempt)
	case len(parts) == 3 && parts[2] == "attempts":
		history, err := f.AttemptHistory(r.Context(), quizID, r.URL.Query().Get("learnerId"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, history)
	default:
		http.NotFound(w, r)
	}
}

func (f *Fake) handleCreateAttempt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		QuizID    string `json:"quizId"`
		LearnerID string `json:"learnerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	attempt, err := f.CreateAttempt(r.Context(), body.QuizID, body.LearnerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, attempt)
}

func (f *Fake) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	// /attempts/{id}/submit
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[2] != "submit" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var body struct {
		Answers []domain.AnswerRecord `json:"answers"`
		Score   int                   `json:"score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	attempt, err := f.SubmitAttempt(r.Context(), parts[1], body.Answers, body.Score)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, attempt)
}

func (f *Fake) handleLearnerStatistics(w http.ResponseWriter, r *http.Request) {
	// /learners/{id}/attempts
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[2] != "attempts" {
		http.NotFound(w, r)
		return
	}
	attempts, err := f.LearnerStatistics(r.Context(), parts[1])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"attempts": attempts})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrAttemptNotFound), errors.Is(err, domain.ErrLessonNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrAttemptActive), errors.Is(err, domain.ErrAttemptSubmitted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
