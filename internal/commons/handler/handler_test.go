package handler

import (
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
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"healthcommons/internal/commons/handler/mocks"
	"healthcommons/internal/commons/models"
	"healthcommons/internal/privacy/budget"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/requestcontext"
)

type CommonsHandlerSuite struct {
	suite.Suite
	creator id.AgentID
	now     time.Time
}

func TestCommonsHandlerSuite(t *testing.T) {
	suite.Run(t, new(CommonsHandlerSuite))
}

func (s *CommonsHandlerSuite) SetupSuite() {
	s.creator = id.AgentID(uuid.New())
	s.now = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
}

func (s *CommonsHandlerSuite) router() (http.Handler, *mocks.MockService) {
	ctrl := gomock.NewController(s.T())
	svc := mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r, svc
}

func (s *CommonsHandlerSuite) do(router http.Handler, caller id.AgentID, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := requestcontext.WithTime(req.Context(), s.now)
	if !caller.IsNil() {
		ctx = requestcontext.WithAgentID(ctx, caller)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req.WithContext(ctx))
	return w
}

func (s *CommonsHandlerSuite) pool() *models.Pool {
	p, err := models.NewPool(id.PoolID(uuid.New()), s.creator, models.PoolSpec{
		Name:           "Asthma registry",
		DataCategories: []id.DataCategory{id.CategoryVitalSigns},
		DefaultEpsilon: 0.5,
		BudgetPerUser:  4,
	}, s.now)
	s.Require().NoError(err)
	return p
}

func (s *CommonsHandlerSuite) TestCreate() {
	s.Run("parses the spec", func() {
		router, svc := s.router()
		svc.EXPECT().CreatePool(gomock.Any(), s.creator, gomock.Any()).DoAndReturn(
			func(_ any, _ id.AgentID, spec models.PoolSpec) (*models.Pool, error) {
				s.Equal("Asthma registry", spec.Name)
				s.Equal(models.GovernanceCooperative, spec.Governance)
				s.Equal(budget.Advanced(1e-6), spec.Composition)
				s.Equal([]id.DataCategory{id.CategoryVitalSigns}, spec.DataCategories)
				return s.pool(), nil
			})

		body := `{"name":" Asthma registry ","data_categories":["vital_signs"],"default_epsilon":0.5,
			"budget_per_user":4,"governance_model":"Cooperative","composition":{"method":"advanced","delta_prime":1e-6}}`
		w := s.do(router, s.creator, http.MethodPost, "/pools", body)
		s.Equal(http.StatusCreated, w.Code)
		var resp PoolResponse
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
		s.True(resp.IsActive)
		s.Equal("aggregate_only", resp.RequiredConsentLevel)
	})

	s.Run("rejects an invalid epsilon before the service", func() {
		router, _ := s.router()
		body := `{"name":"x","data_categories":["vital_signs"],"default_epsilon":-1,"budget_per_user":4}`
		w := s.do(router, s.creator, http.MethodPost, "/pools", body)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("rejects an unknown composition", func() {
		router, _ := s.router()
		body := `{"name":"x","data_categories":["vital_signs"],"default_epsilon":1,"budget_per_user":4,"composition":{"method":"renyi"}}`
		w := s.do(router, s.creator, http.MethodPost, "/pools", body)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *CommonsHandlerSuite) TestListAndGet() {
	s.Run("filters by status", func() {
		router, svc := s.router()
		svc.EXPECT().ListPools(gomock.Any(), models.PoolStatusPaused).Return([]*models.Pool{s.pool()}, nil)
		w := s.do(router, s.creator, http.MethodGet, "/pools?status=paused", "")
		s.Equal(http.StatusOK, w.Code)
		var resp PoolListResponse
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
		s.Len(resp.Pools, 1)
	})

	s.Run("unknown status filter", func() {
		router, _ := s.router()
		w := s.do(router, s.creator, http.MethodGet, "/pools?status=archived", "")
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("maps not found", func() {
		router, svc := s.router()
		poolID := id.PoolID(uuid.New())
		svc.EXPECT().GetPool(gomock.Any(), poolID).Return(nil, dErrors.New(dErrors.CodeNotFound, "pool not found"))
		w := s.do(router, s.creator, http.MethodGet, "/pools/"+poolID.String(), "")
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("malformed pool id", func() {
		router, _ := s.router()
		w := s.do(router, s.creator, http.MethodGet, "/pools/not-a-uuid", "")
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *CommonsHandlerSuite) TestSetStatus() {
	router, svc := s.router()
	p := s.pool()
	p.ApplyStatus(models.PoolStatusClosed, s.now)
	svc.EXPECT().SetPoolStatus(gomock.Any(), s.creator, p.ID, models.PoolStatusClosed).Return(p, nil)

	w := s.do(router, s.creator, http.MethodPost, "/pools/"+p.ID.String()+"/status", `{"status":"closed"}`)
	s.Equal(http.StatusOK, w.Code)
	var resp PoolResponse
	s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
	s.False(resp.IsActive)
}

func (s *CommonsHandlerSuite) TestContribute() {
	hash := strings.Repeat("c", 64)
	poolID := id.PoolID(uuid.New())
	patient := id.AgentID(uuid.New())

	s.Run("records the contribution", func() {
		router, svc := s.router()
		svc.EXPECT().Contribute(gomock.Any(), patient, poolID, gomock.Any()).DoAndReturn(
			func(_ any, _ id.AgentID, _ id.PoolID, req models.ContributionRequest) (*models.Contribution, error) {
				s.Equal(id.CategoryVitalSigns, req.Category)
				s.Equal(id.Hash(hash), req.ConsentHash)
				s.Equal(0.25, req.LocalEpsilon)
				s.Equal(98.6, req.Payload.Value)
				return &models.Contribution{
					ID:             id.ContributionID(uuid.New()),
					PoolID:         poolID,
					Category:       req.Category,
					ConsentHash:    req.ConsentHash,
					BudgetConsumed: req.LocalEpsilon,
					CreatedAt:      s.now,
				}, nil
			})

		body := `{"category":"vital_signs","consent_hash":"` + hash + `","payload":{"value":98.6},"local_epsilon":0.25}`
		w := s.do(router, patient, http.MethodPost, "/pools/"+poolID.String()+"/contributions", body)
		s.Equal(http.StatusCreated, w.Code)
	})

	s.Run("budget denial carries percent remaining", func() {
		router, svc := s.router()
		svc.EXPECT().Contribute(gomock.Any(), patient, poolID, gomock.Any()).Return(nil,
			dErrors.New(dErrors.CodeInsufficientBudget, "insufficient budget").WithMeta(dErrors.MetaPercentRemaining, 12.5))

		body := `{"category":"vital_signs","consent_hash":"` + hash + `","payload":{"value":1},"local_epsilon":2}`
		w := s.do(router, patient, http.MethodPost, "/pools/"+poolID.String()+"/contributions", body)
		s.Equal(http.StatusUnprocessableEntity, w.Code)
		var resp map[string]any
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
		s.Equal(12.5, resp[dErrors.MetaPercentRemaining])
	})

	s.Run("bad consent hash", func() {
		router, _ := s.router()
		body := `{"category":"vital_signs","consent_hash":"xyz","payload":{"value":1}}`
		w := s.do(router, patient, http.MethodPost, "/pools/"+poolID.String()+"/contributions", body)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("requires authentication", func() {
		router, _ := s.router()
		w := s.do(router, id.AgentID{}, http.MethodPost, "/pools/"+poolID.String()+"/contributions", "{}")
		s.Equal(http.StatusUnauthorized, w.Code)
	})
}
