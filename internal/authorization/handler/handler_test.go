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
	"github.com/xuri/excelize/v2"
	"go.uber.org/mock/gomock"

	"healthcommons/internal/authorization/handler/mocks"
	"healthcommons/internal/authorization/models"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/requestcontext"
)

type AuthorizationHandlerSuite struct {
	suite.Suite
	patient id.AgentID
	doctor  id.AgentID
	now     time.Time
}

func TestAuthorizationHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuthorizationHandlerSuite))
}

func (s *AuthorizationHandlerSuite) SetupSuite() {
	s.patient = id.AgentID(uuid.New())
	s.doctor = id.AgentID(uuid.New())
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
}

func (s *AuthorizationHandlerSuite) router() (http.Handler, *mocks.MockService) {
	ctrl := gomock.NewController(s.T())
	mockService := mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(mockService, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r, mockService
}

func (s *AuthorizationHandlerSuite) do(router http.Handler, caller id.AgentID, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := requestcontext.WithTime(req.Context(), s.now)
	if !caller.IsNil() {
		ctx = requestcontext.WithAgentID(ctx, caller)
		ctx = requestcontext.WithRoles(ctx, []string{"clinician"})
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req.WithContext(ctx))
	return w
}

func (s *AuthorizationHandlerSuite) TestCheck() {
	body := `{"patient":"` + s.patient.String() + `","category":"Lab_Results","permission":"read"}`

	s.Run("authorized decision", func() {
		router, svc := s.router()
		svc.EXPECT().Check(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ any, req models.AccessRequest) (*models.Decision, error) {
				s.Equal(s.doctor, req.Requester)
				s.Equal(id.CategoryLabResults, req.Category)
				s.Equal([]string{"clinician"}, req.Roles)
				return &models.Decision{Authorized: true, ConsentHash: id.Hash(strings.Repeat("a", 64)), Reason: models.ReasonConsent}, nil
			})

		w := s.do(router, s.doctor, http.MethodPost, "/authorizations/check", body)
		s.Equal(http.StatusOK, w.Code)
		var resp DecisionResponse
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
		s.True(resp.Authorized)
		s.Equal(models.ReasonConsent, resp.Reason)
	})

	s.Run("denial carries its reason", func() {
		router, svc := s.router()
		svc.EXPECT().Check(gomock.Any(), gomock.Any()).Return(
			&models.Decision{Reason: models.ReasonConsentRevoked},
			dErrors.New(dErrors.CodeConsentRevoked, "consent has been revoked"),
		)

		w := s.do(router, s.doctor, http.MethodPost, "/authorizations/check", body)
		s.Equal(http.StatusForbidden, w.Code)
		var resp map[string]any
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
		s.Equal(string(dErrors.CodeConsentRevoked), resp["error"])
		s.Equal(models.ReasonConsentRevoked, resp["reason"])
	})

	s.Run("unknown permission is rejected before the service", func() {
		router, _ := s.router()
		bad := `{"patient":"` + s.patient.String() + `","category":"lab_results","permission":"launch"}`
		w := s.do(router, s.doctor, http.MethodPost, "/authorizations/check", bad)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("requires authentication", func() {
		router, _ := s.router()
		w := s.do(router, id.AgentID{}, http.MethodPost, "/authorizations/check", body)
		s.Equal(http.StatusUnauthorized, w.Code)
	})
}

func (s *AuthorizationHandlerSuite) TestAccessLogs() {
	s.Run("passes the filter through", func() {
		router, svc := s.router()
		svc.EXPECT().ListAccessLogs(gomock.Any(), s.patient, gomock.Any()).DoAndReturn(
			func(_ any, _ id.AgentID, f models.LogFilter) ([]*models.AccessLog, error) {
				s.Equal(s.doctor, f.Accessor)
				s.Equal(10, f.Limit)
				s.Equal(s.now.Add(-time.Hour), f.From)
				return []*models.AccessLog{{
					ID:         id.AccessLogID(uuid.New()),
					Patient:    s.patient,
					Requester:  s.doctor,
					Category:   id.CategoryLabResults,
					Permission: id.PermissionRead,
					Outcome:    models.OutcomeGranted,
					Reason:     models.ReasonConsent,
					AccessedAt: s.now,
				}}, nil
			})

		path := "/patients/me/access-logs?limit=10&accessor=" + s.doctor.String() +
			"&from=" + s.now.Add(-time.Hour).Format(time.RFC3339)
		w := s.do(router, s.patient, http.MethodGet, path, "")
		s.Equal(http.StatusOK, w.Code)
		var resp AccessLogListResponse
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
		s.Require().Len(resp.Logs, 1)
		s.Equal("granted", resp.Logs[0].Outcome)
	})

	s.Run("rejects a bad limit", func() {
		router, _ := s.router()
		w := s.do(router, s.patient, http.MethodGet, "/patients/me/access-logs?limit=0", "")
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("rejects a malformed timestamp", func() {
		router, _ := s.router()
		w := s.do(router, s.patient, http.MethodGet, "/patients/me/access-logs?from=yesterday", "")
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *AuthorizationHandlerSuite) report() *models.DisclosureReport {
	return &models.DisclosureReport{
		Patient: s.patient,
		From:    s.now.AddDate(0, 0, -90),
		To:      s.now,
		Accessors: []models.AccessorSummary{{
			Accessor:   s.doctor,
			Granted:    2,
			Categories: []id.DataCategory{id.CategoryLabResults},
			LastAccess: s.now,
		}},
	}
}

func (s *AuthorizationHandlerSuite) TestDisclosures() {
	s.Run("defaults to the last 90 days", func() {
		router, svc := s.router()
		svc.EXPECT().DisclosureReport(gomock.Any(), s.patient, s.now.AddDate(0, 0, -90), s.now).Return(s.report(), nil)

		w := s.do(router, s.patient, http.MethodGet, "/patients/me/disclosures", "")
		s.Equal(http.StatusOK, w.Code)
		var resp DisclosureReportResponse
		s.Require().NoError(json.NewDecoder(w.Body).Decode(&resp))
		s.Require().Len(resp.Accessors, 1)
		s.Equal([]string{"lab_results"}, resp.Accessors[0].Categories)
	})

	s.Run("serves a workbook", func() {
		router, svc := s.router()
		svc.EXPECT().DisclosureReport(gomock.Any(), s.patient, gomock.Any(), gomock.Any()).Return(s.report(), nil)

		w := s.do(router, s.patient, http.MethodGet, "/patients/me/disclosures.xlsx", "")
		s.Equal(http.StatusOK, w.Code)
		s.Contains(w.Header().Get("Content-Type"), "spreadsheetml")

		f, err := excelize.OpenReader(w.Body)
		s.Require().NoError(err)
		defer f.Close()
		s.Contains(f.GetSheetList(), "Disclosures")
	})
}
