package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lms-quiz-engine/internal/domain"
)

// RESTClient talks to the upstream LMS over its JSON REST API.
type RESTClient struct {
	baseURL string
	client  *http.Client
}

// NewRESTClient builds a client for the given base URL. timeout bounds every
// request; zero falls back to 15s.
func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *RESTClient) LessonQuizzes(ctx context.Context, lessonID string) ([]domain.Quiz, error) {
	var quizzes []domain.Quiz
	err := c.get(ctx, "/lessons/"+url.PathEscape(lessonID)+"/quizzes", &quizzes)
	if err != nil {
		return nil, fmt.Errorf("lesson quizzes: %w", err)
	}
	return quizzes, nil
}

func (c *RESTClient) QuizQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	var questions []domain.Question
	err := c.get(ctx, "/quizzes/"+url.PathEscape(quizID)+"/questions", &questions)
	if err != nil {
		return nil, fmt.Errorf("quiz questions: %w", err)
	}
	return questions, nil
}

func (c *RESTClient) CreateAttempt(ctx context.Context, quizID, learnerID string) (domain.Attempt, error) {
	body := map[string]any{
		"quizId":    quizID,
		"learnerId": learnerID,
		"answers":   []domain.AnswerRecord{},
	}
	var attempt domain.Attempt
	status, err := c.post(ctx, "/attempts", body, &attempt)
	if err != nil {
		if status == http.StatusConflict {
			return domain.Attempt{}, domain.ErrAttemptActive
		}
		return domain.Attempt{}, fmt.Errorf("create attempt: %w", err)
	}
	return attempt, nil
}

func (c *RESTClient) SubmitAttempt(ctx context.Context, attemptID string, answers []domain.AnswerRecord, score int) (domain.Attempt, error) {
	body := map[string]any{
		"answers": answers,
		"score":   score,
	}
	var attempt domain.Attempt
	status, err := c.post(ctx, "/attempts/"+url.PathEscape(attemptID)+"/submit", body, &attempt)
	if err != nil {
		switch status {
		case http.StatusNotFound:
			return domain.Attempt{}, domain.ErrAttemptNotFound
		case http.StatusConflict:
			return domain.Attempt{}, domain.ErrAttemptSubmitted
		}
		return domain.Attempt{}, fmt.Errorf("submit attempt: %w", err)
	}
	return attempt, nil
}

func (c *RESTClient) ActiveAttempt(ctx context.Context, quizID, learnerID string) (domain.Attempt, bool, error) {
	path := "/quizzes/" + url.PathEscape(quizID) + "/attempts/active?learnerId=" + url.QueryEscape(learnerID)
	var attempt domain.Attempt
	err := c.get(ctx, path, &attempt)
	if err != nil {
		if errStatus(err) == http.StatusNotFound {
			return domain.Attempt{}, false, nil
		}
		return domain.Attempt{}, false, fmt.Errorf("active attempt: %w", err)
	}
	return attempt, true, nil
}

func (c *RESTClient) AttemptHistory(ctx context.Context, quizID, learnerID string) (domain.AttemptHistory, error) {
	path := "/quizzes/" + url.PathEscape(quizID) + "/attempts?learnerId=" + url.QueryEscape(learnerID)
	var history domain.AttemptHistory
	if err := c.get(ctx, path, &history); err != nil {
		return domain.AttemptHistory{}, fmt.Errorf("attempt history: %w", err)
	}
	return history, nil
}

func (c *RESTClient) LearnerStatistics(ctx context.Context, learnerID string) ([]domain.Attempt, error) {
	var payload struct {
		Attempts []domain.Attempt `json:"attempts"`
	}
	if err := c.get(ctx, "/learners/"+url.PathEscape(learnerID)+"/attempts", &payload); err != nil {
		return nil, fmt.Errorf("learner statistics: %w", err)
	}
	return payload.Attempts, nil
}

func (c *RESTClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *RESTClient) post(ctx context.Context, path string, body, out any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	err = c.do(req, out)
	return errStatus(err), err
}

func (c *RESTClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError carries the HTTP status so callers can map it to domain errors.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("upstream returned %d", e.code)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.code, e.body)
}

func errStatus(err error) int {
	if se, ok := err.(*statusError); ok {
		return se.code
	}
	return 0
}
