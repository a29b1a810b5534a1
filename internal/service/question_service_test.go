package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ami-audit-api/internal/models"
	appErrors "github.com/noah-isme/ami-audit-api/pkg/errors"
)

type mockQuestionRepo struct {
	questions map[string]*models.MasterQuestion
	trail     []*models.TrailRecord
}

func newMockQuestionRepo() *mockQuestionRepo {
	return &mockQuestionRepo{questions: make(map[string]*models.MasterQuestion)}
}

func (m *mockQuestionRepo) List(_ context.Context, _ models.QuestionFilter) ([]models.MasterQuestion, int, error) {
	var out []models.MasterQuestion
	for _, q := range m.questions {
		out = append(out, *q)
	}
	return out, len(out), nil
}

func (m *mockQuestionRepo) ListByStandard(_ context.Context, standard models.Standard) ([]models.MasterQuestion, error) {
	var out []models.MasterQuestion
	for _, q := range m.questions {
		if q.Standard == standard {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (m *mockQuestionRepo) FindByID(_ context.Context, id string) (*models.MasterQuestion, error) {
	q, ok := m.questions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *q
	return &copied, nil
}

func (m *mockQuestionRepo) Create(_ context.Context, question *models.MasterQuestion) error {
	copied := *question
	m.questions[question.ID] = &copied
	return nil
}

func (m *mockQuestionRepo) Update(_ context.Context, question *models.MasterQuestion) error {
	copied := *question
	m.questions[question.ID] = &copied
	return nil
}

func (m *mockQuestionRepo) Delete(_ context.Context, id string) error {
	delete(m.questions, id)
	return nil
}

func (m *mockQuestionRepo) CreateTrailRecord(_ context.Context, record *models.TrailRecord) error {
	m.trail = append(m.trail, record)
	return nil
}

func TestQuestionServiceCreateRejectsUnknownStandard(t *testing.T) {
	svc := NewQuestionService(newMockQuestionRepo(), nil, nil)

	_, err := svc.Create(context.Background(), principal(models.RoleAdmin, ""), CreateQuestionRequest{
		Code:     "Q-01",
		Standard: "MADE_UP",
		Category: "Tata Pamong",
		Text:     "Apakah dokumen mutu tersedia?",
	}, models.LoginRequest{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestQuestionServiceUpdateKeepsStandard(t *testing.T) {
	repo := newMockQuestionRepo()
	svc := NewQuestionService(repo, nil, nil)

	created, err := svc.Create(context.Background(), principal(models.RoleAdmin, ""), CreateQuestionRequest{
		Code:     "Q-01",
		Standard: models.StandardLAMInfokom,
		Category: "Tata Pamong",
		Text:     "Apakah dokumen mutu tersedia?",
	}, models.LoginRequest{})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), principal(models.RoleAdmin, ""), created.ID, UpdateQuestionRequest{
		Code:     "Q-01A",
		Category: "Penjaminan Mutu",
		Text:     "Apakah dokumen mutu diperbarui?",
	}, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.StandardLAMInfokom, updated.Standard)
	assert.Equal(t, "Q-01A", updated.Code)
	require.Len(t, repo.trail, 2)
	assert.Equal(t, models.TrailActionQuestionUpdate, repo.trail[1].Action)
}

func TestQuestionServiceListByStandard(t *testing.T) {
	repo := newMockQuestionRepo()
	svc := NewQuestionService(repo, nil, nil)

	_, err := svc.Create(context.Background(), principal(models.RoleAdmin, ""), CreateQuestionRequest{
		Code: "Q-01", Standard: models.StandardLAMInfokom, Category: "Tata Pamong", Text: "A?",
	}, models.LoginRequest{})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), principal(models.RoleAdmin, ""), CreateQuestionRequest{
		Code: "Q-02", Standard: models.StandardBANPT, Category: "Tata Pamong", Text: "B?",
	}, models.LoginRequest{})
	require.NoError(t, err)

	questions, err := svc.ListByStandard(context.Background(), models.StandardLAMInfokom)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "Q-01", questions[0].Code)

	_, err = svc.ListByStandard(context.Background(), "MADE_UP")
	require.Error(t, err)
}

func TestQuestionServiceDeleteRecordsTrail(t *testing.T) {
	repo := newMockQuestionRepo()
	svc := NewQuestionService(repo, nil, nil)

	created, err := svc.Create(context.Background(), principal(models.RoleAdmin, ""), CreateQuestionRequest{
		Code: "Q-01", Standard: models.StandardLAMInfokom, Category: "Tata Pamong", Text: "A?",
	}, models.LoginRequest{})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), principal(models.RoleAdmin, ""), created.ID, models.LoginRequest{}))
	assert.Empty(t, repo.questions)
	assert.Equal(t, models.TrailActionQuestionDelete, repo.trail[len(repo.trail)-1].Action)
}
