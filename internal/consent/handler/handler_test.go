package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"healthcommons/internal/consent/handler/mocks"
	"healthcommons/internal/consent/models"
	"healthcommons/internal/consent/service"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/requestcontext"
)

type ConsentHandlerSuite struct {
	suite.Suite
	patient id.AgentID
	doctor  id.AgentID
	now     time.Time
}

func TestConsentHandlerSuite(t *testing.T) {
	suite.Run(t, new(ConsentHandlerSuite))
}

func (s *ConsentHandlerSuite) SetupSuite() {
	s.patient = id.AgentID(uuid.New())
	s.doctor = id.AgentID(uuid.New())
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
}

func newTestRouter(t *testing.T) (http.Handler, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	New(mockService, logger).Register(r)
	return r, mockService
}

func (s *ConsentHandlerSuite) do(router http.Handler, caller id.AgentID, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := requestcontext.WithTime(req.Context(), s.now)
	if !caller.IsNil() {
		ctx = requestcontext.WithAgentID(ctx, caller)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req.WithContext(ctx))
	return w
}

func (s *ConsentHandlerSuite) consent() *models.Consent {
	c, err := models.NewConsent(s.patient, models.Terms{
		Grantee:        models.Grantee{Kind: models.GranteeAgent, Agent: s.doctor},
		Scope:          models.ScopeRead,
		DataCategories: []id.DataCategory{id.CategoryAllergies},
		Purpose:        "allergy review",
	}, s.now)
	s.Require().NoError(err)
	return c
}

func (s *ConsentHandlerSuite) TestGrant() {
	s.Run("parses the request into terms", func() {
		router, mockService := newTestRouter(s.T())
		c := s.consent()
		mockService.EXPECT().Grant(gomock.Any(), s.patient, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.AgentID, terms models.Terms) (*models.Consent, error) {
				assert.Equal(s.T(), models.GranteeAgent, terms.Grantee.Kind)
				assert.Equal(s.T(), s.doctor, terms.Grantee.Agent)
				assert.Equal(s.T(), []id.DataCategory{id.CategoryAllergies}, terms.DataCategories)
				assert.Equal(s.T(), "allergy review", terms.Purpose)
				return c, nil
			})

		body := `{"grantee":{"kind":"agent","agent":"` + s.doctor.String() + `"},
			"scope":"read","data_categories":[" Allergies ","allergies"],"purpose":" allergy review "}`
		w := s.do(router, s.patient, http.MethodPost, "/consents", body)

		s.Equal(http.StatusCreated, w.Code)
		var resp ConsentResponse
		require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(c.Hash.String(), resp.Hash)
		s.True(resp.IsEffective)
	})

	s.Run("rejects unknown scope before calling the service", func() {
		router, _ := newTestRouter(s.T())
		body := `{"grantee":{"kind":"role","role":"nurse"},"scope":"everything","data_categories":["allergies"],"purpose":"x"}`
		w := s.do(router, s.patient, http.MethodPost, "/consents", body)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("requires an authenticated caller", func() {
		router, _ := newTestRouter(s.T())
		w := s.do(router, id.AgentID{}, http.MethodPost, "/consents", `{}`)
		s.Equal(http.StatusUnauthorized, w.Code)
	})
}

func (s *ConsentHandlerSuite) TestRevoke() {
	router, mockService := newTestRouter(s.T())
	c := s.consent()
	revoked := c.Clone()
	revoked.ApplyRevoke(s.now, "done")
	mockService.EXPECT().Revoke(gomock.Any(), s.patient, c.Hash, "done").Return(revoked, nil)

	w := s.do(router, s.patient, http.MethodPost, "/consents/"+c.Hash.String()+"/revoke", `{"reason":"done"}`)
	s.Equal(http.StatusOK, w.Code)
	var resp ConsentResponse
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	s.False(resp.IsActive)
	s.Equal("done", resp.RevocationReason)
}

func (s *ConsentHandlerSuite) TestRevokeMapsDomainErrors() {
	router, mockService := newTestRouter(s.T())
	c := s.consent()
	mockService.EXPECT().Revoke(gomock.Any(), s.doctor, c.Hash, "").
		Return(nil, dErrors.New(dErrors.CodeForbidden, "only the granting patient can change a consent"))

	w := s.do(router, s.doctor, http.MethodPost, "/consents/"+c.Hash.String()+"/revoke", `{}`)
	s.Equal(http.StatusForbidden, w.Code)
	s.Contains(w.Body.String(), "forbidden")
}

func (s *ConsentHandlerSuite) TestInvalidHash() {
	router, _ := newTestRouter(s.T())
	w := s.do(router, s.patient, http.MethodGet, "/consents/not-a-hash", "")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *ConsentHandlerSuite) TestExtendAndScope() {
	router, mockService := newTestRouter(s.T())
	c := s.consent()
	until := s.now.Add(48 * time.Hour)

	mockService.EXPECT().Extend(gomock.Any(), s.patient, c.Hash, until).Return(c, nil)
	w := s.do(router, s.patient, http.MethodPost, "/consents/"+c.Hash.String()+"/extend",
		`{"valid_until":"`+until.Format(time.RFC3339)+`"}`)
	s.Equal(http.StatusOK, w.Code)

	mockService.EXPECT().UpdateScope(gomock.Any(), s.patient, c.Hash, service.ScopeChange{
		Scope:             models.ScopeCustom,
		CustomPermissions: []id.Permission{id.PermissionAggregate},
		DataCategories:    []id.DataCategory{id.CategoryAll},
		Exclusions:        []id.DataCategory{id.CategoryGeneticData},
	}).Return(c, nil)
	w = s.do(router, s.patient, http.MethodPost, "/consents/"+c.Hash.String()+"/scope",
		`{"scope":"custom","permissions":["aggregate"],"data_categories":["all"],"exclusions":["genetic_data"]}`)
	s.Equal(http.StatusOK, w.Code)
}

func (s *ConsentHandlerSuite) TestListAndHistory() {
	router, mockService := newTestRouter(s.T())
	c := s.consent()

	mockService.EXPECT().ListByGrantor(gomock.Any(), s.patient).Return([]*models.Consent{c}, nil)
	w := s.do(router, s.patient, http.MethodGet, "/consents", "")
	s.Equal(http.StatusOK, w.Code)
	var list ConsentListResponse
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &list))
	s.Len(list.Consents, 1)

	mockService.EXPECT().ListReceived(gomock.Any(), s.doctor).Return(nil, nil)
	w = s.do(router, s.doctor, http.MethodGet, "/consents?received=true", "")
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"consents":[]}`, w.Body.String())

	mockService.EXPECT().History(gomock.Any(), s.doctor, c.Hash).Return([]*models.Consent{c}, nil)
	w = s.do(router, s.doctor, http.MethodGet, "/consents/"+c.Hash.String()+"/history", "")
	s.Equal(http.StatusOK, w.Code)
}
