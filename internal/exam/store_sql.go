package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chipcloud/ielts-practice/internal/band"
	"github.com/chipcloud/ielts-practice/internal/grading"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	now    func() time.Time
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver, now: time.Now}
}

func (s *SQLStore) PutExam(ctx context.Context, e Exam) (Exam, error) {
	if e.ID != "" {
		var created int64
		err := s.db.QueryRowContext(ctx, `SELECT created_at FROM exams WHERE id=$1`, e.ID).Scan(&created)
		if err == nil {
			e.CreatedAt = time.Unix(created, 0).UTC()
		} else if !errors.Is(err, sql.ErrNoRows) {
			return Exam{}, err
		}
	}
	if err := prepareExam(&e, s.now().UTC()); err != nil {
		return Exam{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Exam{}, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO exams (id,name,type,is_published,time_limit_minutes,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, type=EXCLUDED.type, is_published=EXCLUDED.is_published,
			time_limit_minutes=EXCLUDED.time_limit_minutes, updated_at=EXCLUDED.updated_at`,
		e.ID, e.Name, string(e.Type), e.IsPublished, e.TimeLimitMinutes, e.CreatedAt.Unix(), e.UpdatedAt.Unix())
	if err != nil {
		return Exam{}, err
	}
	// questions are replaced wholesale on every put
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE exam_id=$1`, e.ID); err != nil {
		return Exam{}, err
	}
	for _, q := range e.Questions {
		_, err := tx.ExecContext(ctx, `INSERT INTO questions (id,exam_id,module,question_number,content,question_structure,max_score,created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			q.ID, e.ID, string(q.Module), q.Number, string(q.Content), string(q.Structure), q.MaxScore, q.CreatedAt.Unix())
		if err != nil {
			return Exam{}, fmt.Errorf("insert question %d: %w", q.Number, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	e, err := s.GetExamAdmin(ctx, id)
	if err != nil {
		return Exam{}, err
	}
	return e.Stripped(), nil
}

func (s *SQLStore) GetExamAdmin(ctx context.Context, id string) (Exam, error) {
	e, err := s.examRow(ctx, id)
	if err != nil {
		return Exam{}, err
	}
	e.Questions, err = s.questions(ctx, id, "")
	if err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (s *SQLStore) examRow(ctx context.Context, id string) (Exam, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,type,is_published,time_limit_minutes,created_at,updated_at
		FROM exams WHERE id=$1`, id)
	var e Exam
	var typ string
	var created, updated int64
	if err := row.Scan(&e.ID, &e.Name, &typ, &e.IsPublished, &e.TimeLimitMinutes, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Exam{}, ErrExamNotFound
		}
		return Exam{}, err
	}
	e.Type = band.Variant(typ)
	e.CreatedAt = time.Unix(created, 0).UTC()
	e.UpdatedAt = time.Unix(updated, 0).UTC()
	return e, nil
}

func (s *SQLStore) questions(ctx context.Context, examID string, module band.Module) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,exam_id,module,question_number,content,question_structure,max_score,created_at
		FROM questions WHERE exam_id=$1 AND ($2='' OR module=$2)
		ORDER BY question_number ASC, id ASC`, examID, string(module))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var q Question
		var mod, content, structure string
		var created int64
		if err := rows.Scan(&q.ID, &q.ExamID, &mod, &q.Number, &content, &structure, &q.MaxScore, &created); err != nil {
			return nil, err
		}
		q.Module = band.Module(mod)
		q.Content = json.RawMessage(content)
		q.Structure = json.RawMessage(structure)
		q.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListExams(ctx context.Context, opts ListOpts) ([]ExamSummary, error) {
	limit, offset := clampPage(opts.Limit, opts.Offset)

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !opts.IncludeUnpublished {
		where = append(where, "e.is_published = "+arg(true))
	}
	if opts.Type != "" {
		where = append(where, "e.type = "+arg(string(opts.Type)))
	}
	if q := strings.TrimSpace(opts.Q); q != "" {
		where = append(where, "LOWER(e.name) LIKE "+arg("%"+strings.ToLower(q)+"%"))
	}
	query := `SELECT e.id,e.name,e.type,e.is_published,e.time_limit_minutes,e.created_at,
		(SELECT COUNT(*) FROM questions q WHERE q.exam_id=e.id)
		FROM exams e`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.created_at DESC, e.id ASC LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ExamSummary{}
	for rows.Next() {
		var es ExamSummary
		var typ string
		var created int64
		if err := rows.Scan(&es.ID, &es.Name, &typ, &es.IsPublished, &es.TimeLimitMinutes, &created, &es.QuestionCount); err != nil {
			return nil, err
		}
		es.Type = band.Variant(typ)
		es.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, es)
	}
	return out, rows.Err()
}

func (s *SQLStore) QuestionSet(ctx context.Context, examID string, module band.Module) (QuestionSet, error) {
	e, err := s.examRow(ctx, examID)
	if err != nil {
		return QuestionSet{}, err
	}
	qs, err := s.questions(ctx, examID, module)
	if err != nil {
		return QuestionSet{}, err
	}
	return QuestionSet{ExamID: examID, Variant: e.Type, Module: module, Questions: qs}, nil
}

func (s *SQLStore) NewAttempt(ctx context.Context, examID, userID string, module band.Module) (Attempt, error) {
	var exist int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM exams WHERE id=$1`, examID).Scan(&exist); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrExamNotFound
		}
		return Attempt{}, err
	}
	now := s.now().UTC()
	a := Attempt{
		ID:        uuid.NewString(),
		ExamID:    examID,
		UserID:    userID,
		Module:    module,
		Answers:   grading.Answers{},
		Status:    StatusInProgress,
		StartedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO attempts (id,user_id,exam_id,module,user_answers,status,started_at,updated_at)
		VALUES ($1,$2,$3,$4,'{}',$5,$6,$7)`,
		a.ID, userID, examID, string(module), string(a.Status), now.Unix(), now.Unix())
	if err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) SaveResponses(ctx context.Context, attemptID string, answers grading.Answers) (Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status == StatusCompleted {
		return Attempt{}, ErrAttemptCompleted
	}
	a.Answers = MergeAnswers(a.Answers, answers)
	buf, err := json.Marshal(a.Answers)
	if err != nil {
		return Attempt{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE attempts SET user_answers=$1, updated_at=$2 WHERE id=$3 AND status=$4`,
		string(buf), s.now().Unix(), attemptID, string(StatusInProgress))
	if err != nil {
		return Attempt{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Attempt{}, ErrAttemptCompleted
	}
	return s.GetAttempt(ctx, attemptID)
}

func (s *SQLStore) CompleteAttempt(ctx context.Context, attemptID string, answers grading.Answers, score, bandScore float64) (Attempt, error) {
	buf, err := json.Marshal(MergeAnswers(nil, answers))
	if err != nil {
		return Attempt{}, err
	}
	now := s.now().Unix()
	res, err := s.db.ExecContext(ctx, `UPDATE attempts SET user_answers=$1, score=$2, band_score=$3, status=$4, completed_at=$5, updated_at=$5
		WHERE id=$6 AND status=$7`,
		string(buf), score, bandScore, string(StatusCompleted), now, attemptID, string(StatusInProgress))
	if err != nil {
		return Attempt{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetAttempt(ctx, attemptID); err != nil {
			return Attempt{}, err
		}
		return Attempt{}, ErrAttemptCompleted
	}
	return s.GetAttempt(ctx, attemptID)
}

const attemptCols = `id,user_id,exam_id,module,user_answers,score,band_score,status,started_at,completed_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var (
		a                Attempt
		mod, answers, st string
		score, bandScore sql.NullFloat64
		started, updated int64
		completed        sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.ExamID, &mod, &answers, &score, &bandScore, &st, &started, &completed, &updated); err != nil {
		return Attempt{}, err
	}
	a.Module = band.Module(mod)
	a.Status = Status(st)
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil || a.Answers == nil {
		a.Answers = grading.Answers{}
	}
	if score.Valid {
		a.Score = &score.Float64
	}
	if bandScore.Valid {
		a.BandScore = &bandScore.Float64
	}
	a.StartedAt = time.Unix(started, 0).UTC()
	a.UpdatedAt = time.Unix(updated, 0).UTC()
	if completed.Valid {
		t := time.Unix(completed.Int64, 0).UTC()
		a.CompletedAt = &t
	}
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	limit, offset := clampPage(opts.Limit, opts.Offset)

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.ExamID != "" {
		where = append(where, "exam_id = "+arg(opts.ExamID))
	}
	if opts.UserID != "" {
		where = append(where, "user_id = "+arg(opts.UserID))
	}
	if opts.Status != "" {
		where = append(where, "status = "+arg(string(opts.Status)))
	}
	query := `SELECT ` + attemptCols + ` FROM attempts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id ASC LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Ping reports whether the database answers.
func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
