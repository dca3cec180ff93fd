package domain

import "time"

// DefaultPassingScore is the percentage threshold applied when a quiz does not
// declare its own.
const DefaultPassingScore = 70

// Quiz is the metadata of a quiz as owned by the upstream LMS.
type Quiz struct {
	ID             string `json:"id"`
	LessonID       string `json:"lessonId"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Published      bool   `json:"published"`
	TimeLimit      int    `json:"timeLimit,omitempty"` // minutes, zero means unlimited
	PassingScore   int    `json:"passingScore"`
	TotalQuestions int    `json:"totalQuestions"`
}

// Threshold returns the effective passing score. A quiz with no explicit
// threshold falls back to DefaultPassingScore rather than blocking the flow.
func (q Quiz) Threshold() int {
	if q.PassingScore <= 0 {
		return DefaultPassingScore
	}
	return q.PassingScore
}

// Question models an MCQ question with exactly one correct option. The correct
// option is compared by exact string equality against the learner's selection.
type Question struct {
	ID          string   `json:"id"`
	QuizID      string   `json:"quizId"`
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	Correct     string   `json:"correct"`
	Explanation string   `json:"explanation,omitempty"`
}

// AnswerRecord is one question's outcome inside a submitted attempt.
type AnswerRecord struct {
	QuestionID     string `json:"questionId"`
	SelectedOption string `json:"selectedOption"`
	IsCorrect      bool   `json:"isCorrect"`
	TimeSpent      int    `json:"timeSpent"` // seconds
}

// Attempt is one learner's one pass at a quiz. SubmittedAt and Score are nil
// while the attempt is still in progress; once submitted the record is
// immutable.
type Attempt struct {
	ID           string         `json:"id"`
	QuizID       string         `json:"quizId"`
	LearnerID    string         `json:"learnerId"`
	StartedAt    time.Time      `json:"startedAt"`
	SubmittedAt  *time.Time     `json:"submittedAt,omitempty"`
	Score        *int           `json:"score,omitempty"`
	Answers      []AnswerRecord `json:"answers"`
	AttemptCount int            `json:"attemptCount"`
}

// Active reports whether the attempt has been started but not yet submitted.
func (a Attempt) Active() bool {
	return a.SubmittedAt == nil
}

// AttemptStats aggregates a learner's attempt history for one quiz.
type AttemptStats struct {
	TotalAttempts    int       `json:"totalAttempts"`
	HighestScore     int       `json:"highestScore"`
	AverageScore     float64   `json:"averageScore"`
	LastAttemptScore int       `json:"lastAttemptScore"`
	LastAttemptAt    time.Time `json:"lastAttemptAt"`
}

// AttemptHistory is the upstream's per-quiz history payload.
type AttemptHistory struct {
	Attempts []Attempt    `json:"attempts"`
	Stats    AttemptStats `json:"stats"`
}

// ResultDetail is the per-question breakdown shown in review mode.
type ResultDetail struct {
	QuestionID     string `json:"questionId"`
	Prompt         string `json:"prompt,omitempty"`
	SelectedOption string `json:"selectedOption"`
	CorrectOption  string `json:"correctOption"`
	IsCorrect      bool   `json:"isCorrect"`
	Explanation    string `json:"explanation,omitempty"`
}

// QuizResult is the last-known outcome for a quiz in the current session. It
// may originate locally (just submitted, rich Details) or be backfilled from
// server history (SyncedWithAPI, no per-question breakdown).
type QuizResult struct {
	Percentage    int            `json:"percentage"`
	Passed        bool           `json:"passed"`
	Details       []ResultDetail `json:"details,omitempty"`
	SubmittedAt   time.Time      `json:"submittedAt"`
	HasHistory    bool           `json:"hasHistory"`
	SyncedWithAPI bool           `json:"syncedWithAPI"`
}
