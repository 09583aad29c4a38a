package service

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	authservice "healthcommons/internal/authorization/service"
	authstore "healthcommons/internal/authorization/store"
	commonsmodels "healthcommons/internal/commons/models"
	"healthcommons/internal/commons/sealing"
	commonsservice "healthcommons/internal/commons/service"
	"healthcommons/internal/commons/store/contribution"
	"healthcommons/internal/commons/store/pool"
	consentmodel "healthcommons/internal/consent/models"
	consentservice "healthcommons/internal/consent/service"
	consentstore "healthcommons/internal/consent/store"
	"healthcommons/internal/platform/entrystore"
	"healthcommons/internal/privacy/budget"
	"healthcommons/internal/privacy/mechanism"
	privacyservice "healthcommons/internal/privacy/service"
	"healthcommons/internal/privacy/store/ledger"
	"healthcommons/internal/query/models"
	id "healthcommons/pkg/domain"
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/audit"
	"healthcommons/pkg/platform/audit/publishers/compliance"
	auditmemory "healthcommons/pkg/platform/audit/store/memory"
	"healthcommons/pkg/requestcontext"
)

// fixedSource returns the same uniform every time. 0.5 makes Laplace noise zero.
type fixedSource float64

func (f fixedSource) Uniform() (float64, error) { return float64(f), nil }

// sequence replays fixed uniforms.
type sequence struct {
	values []float64
	i      int
}

func (s *sequence) Uniform() (float64, error) {
	v := s.values[s.i%len(s.values)]
	s.i++
	return v, nil
}

type ServiceSuite struct {
	suite.Suite
	commons  *commonsservice.Service
	consents *consentservice.Service
	privacy  *privacyservice.Service
	authz    *authservice.Service
	audit    *auditmemory.InMemoryStore
	creator  id.AgentID
	patient  id.AgentID
	steward  id.AgentID
	ctx      context.Context
	pools    int
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	pools := pool.NewInMemoryStore()
	s.audit = auditmemory.NewInMemoryStore()
	s.consents = consentservice.New(consentstore.NewInMemoryStore())
	s.privacy = privacyservice.New(ledger.NewInMemoryStore(), commonsservice.NewPolicySource(pools))
	s.authz = authservice.New(s.consents, authstore.NewInMemoryStore())
	sealer, err := sealing.New(bytes.Repeat([]byte{7}, sealing.MinMasterKeyLength))
	s.Require().NoError(err)
	s.commons = commonsservice.New(pools, contribution.NewInMemoryStore(), s.consents,
		entrystore.NewInMemoryStore(), sealer, commonsservice.WithBudget(s.privacy))

	s.creator = id.AgentID(uuid.New())
	s.patient = id.AgentID(uuid.New())
	s.steward = id.AgentID(uuid.New())
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
}

func (s *ServiceSuite) executor(src mechanism.Source) *Service {
	return New(s.commons, s.authz, s.privacy,
		WithSource(src),
		WithAuditPublisher(compliance.New(s.audit)),
	)
}

func (s *ServiceSuite) createPool(minContributors int) *commonsmodels.Pool {
	s.pools++
	p, err := s.commons.CreatePool(s.ctx, s.creator, commonsmodels.PoolSpec{
		Name:            fmt.Sprintf("cardiology cohort %d", s.pools),
		DataCategories:  []id.DataCategory{id.CategoryLabResults},
		DefaultEpsilon:  1,
		BudgetPerUser:   10,
		MinContributors: minContributors,
	})
	s.Require().NoError(err)
	return p
}

// contribute records one payload per fresh contributor.
func (s *ServiceSuite) contribute(p *commonsmodels.Pool, payloads ...commonsmodels.Payload) {
	for _, payload := range payloads {
		contributor := id.AgentID(uuid.New())
		c, err := s.consents.Grant(s.ctx, contributor, consentmodel.Terms{
			Grantee:        consentmodel.Grantee{Kind: consentmodel.GranteeAgent, Agent: s.steward},
			Scope:          consentmodel.ScopeAggregateOnly,
			DataCategories: []id.DataCategory{id.CategoryLabResults},
			Purpose:        "cohort research",
		})
		s.Require().NoError(err)
		_, err = s.commons.Contribute(s.ctx, contributor, p.ID, commonsmodels.ContributionRequest{
			Category:    id.CategoryLabResults,
			ConsentHash: c.Hash,
			Payload:     payload,
		})
		s.Require().NoError(err)
	}
}

func values(vs ...float64) []commonsmodels.Payload {
	out := make([]commonsmodels.Payload, len(vs))
	for i, v := range vs {
		out[i] = commonsmodels.Payload{Value: v}
	}
	return out
}

func (s *ServiceSuite) request(p *commonsmodels.Pool, t models.QueryType, eps float64) models.Request {
	return models.Request{
		PoolID:   p.ID,
		Patient:  s.patient,
		Category: id.CategoryLabResults,
		Type:     t,
		Params:   budget.Params{Epsilon: eps, Sensitivity: 1},
	}
}

func (s *ServiceSuite) actions() []string {
	events, err := s.audit.ListByAgent(context.Background(), s.patient)
	s.Require().NoError(err)
	var out []string
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func (s *ServiceSuite) TestAggregates() {
	p := s.createPool(3)
	s.contribute(p, values(10, 20, 30)...)
	exec := s.executor(fixedSource(0.5))

	s.Run("count", func() {
		res, err := exec.Execute(s.ctx, s.patient, s.request(p, models.QueryCount, 0.5))
		s.Require().NoError(err)
		s.Equal(3.0, res.Value)
		s.Equal(budget.MechanismLaplace, res.Mechanism)
		s.Equal(0.5, res.EpsilonConsumed)
		s.Equal(0.0, res.DeltaConsumed)
		s.Equal(3, res.Contributors)
		s.Require().NotNil(res.StandardError)
		s.InDelta(mechanism.LaplaceStandardError(2), *res.StandardError, 1e-12)
		s.Require().NotNil(res.ConfidenceInterval)
		s.Less(res.ConfidenceInterval.Lower, 3.0)
		s.Greater(res.ConfidenceInterval.Upper, 3.0)
	})

	s.Run("sum", func() {
		res, err := exec.Execute(s.ctx, s.patient, s.request(p, models.QuerySum, 0.5))
		s.Require().NoError(err)
		s.Equal(60.0, res.Value)
	})

	s.Run("median", func() {
		req := s.request(p, models.QueryMedian, 1)
		req.Grid = &mechanism.Grid{Lower: 0, Upper: 40, Step: 10}
		res, err := exec.Execute(s.ctx, s.patient, req)
		s.Require().NoError(err)
		s.Equal(20.0, res.Value)
		s.Equal(budget.MechanismExponential, res.Mechanism)
		s.Nil(res.ConfidenceInterval)
	})

	s.Run("average uses gaussian noise", func() {
		// u2 = 0.25 puts the Box-Muller angle at π/2, so the noise is zero.
		gauss := s.executor(&sequence{values: []float64{0.5, 0.25}})
		req := s.request(p, models.QueryAverage, 1)
		delta := 1e-6
		req.Params.Delta = &delta
		res, err := gauss.Execute(s.ctx, s.patient, req)
		s.Require().NoError(err)
		s.InDelta(20.0, res.Value, 1e-9)
		s.Equal(budget.MechanismGaussian, res.Mechanism)
		s.Equal(delta, res.DeltaConsumed)
		s.Require().NotNil(res.StandardError)
		s.InDelta(mechanism.GaussianSigma(1, 1, delta), *res.StandardError, 1e-12)
	})

	s.Run("budget reflects every executed query", func() {
		view, err := s.privacy.GetStatus(s.ctx, s.patient, p.ID)
		s.Require().NoError(err)
		s.InDelta(3.0, view.Status.Consumed, 1e-12)
		s.Equal(int64(4), view.Entry.QueryCount)
		s.Contains(s.actions(), string(audit.EventQueryExecuted))
	})
}

func (s *ServiceSuite) TestHistogramAndBooleanCount() {
	p := s.createPool(3)
	yes, no := true, false
	s.contribute(p,
		commonsmodels.Payload{Value: 1, Bucket: "a", Flag: &yes},
		commonsmodels.Payload{Value: 2, Bucket: "a", Flag: &yes},
		commonsmodels.Payload{Value: 3, Flag: &no},
	)
	exec := s.executor(fixedSource(0.5))

	s.Run("histogram releases every declared bucket and other", func() {
		req := s.request(p, models.QueryHistogram, 1)
		req.Buckets = []string{"a", "b"}
		res, err := exec.Execute(s.ctx, s.patient, req)
		s.Require().NoError(err)
		s.Equal([]models.Bucket{
			{Label: "a", Value: 2},
			{Label: "b", Value: 0},
			{Label: models.OtherBucket, Value: 1},
		}, res.Values)
		s.Equal(3.0, res.Value)
	})

	s.Run("histogram without declared buckets is refused before any spend", func() {
		before, err := s.privacy.GetStatus(s.ctx, s.patient, p.ID)
		s.Require().NoError(err)
		_, err = exec.Execute(s.ctx, s.patient, s.request(p, models.QueryHistogram, 1))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		after, err := s.privacy.GetStatus(s.ctx, s.patient, p.ID)
		s.Require().NoError(err)
		s.Equal(before.Status.Consumed, after.Status.Consumed)
	})

	s.Run("randomized response count is debiased", func() {
		req := s.request(p, models.QueryCount, 1)
		req.Params.Mechanism = budget.MechanismRandomizedResponse
		res, err := exec.Execute(s.ctx, s.patient, req)
		s.Require().NoError(err)
		// 0.5 is below the keep probability, so every flag is reported truthfully.
		s.InDelta(mechanism.DebiasCount(2, 3, 1), res.Value, 1e-12)
		s.Equal(budget.MechanismRandomizedResponse, res.Mechanism)
	})
}

func (s *ServiceSuite) TestPreconditions() {
	exec := s.executor(fixedSource(0.5))

	s.Run("paused pool is inactive", func() {
		p := s.createPool(1)
		s.contribute(p, values(1)...)
		_, err := s.commons.SetPoolStatus(s.ctx, s.creator, p.ID, commonsmodels.PoolStatusPaused)
		s.Require().NoError(err)

		_, err = exec.Execute(s.ctx, s.patient, s.request(p, models.QueryCount, 1))
		s.True(dErrors.HasCode(err, dErrors.CodePoolInactive))
	})

	s.Run("too few contributors", func() {
		p := s.createPool(5)
		s.contribute(p, values(1, 2)...)
		_, err := exec.Execute(s.ctx, s.patient, s.request(p, models.QueryCount, 1))
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientContributors))
	})

	s.Run("category outside the pool", func() {
		p := s.createPool(1)
		req := s.request(p, models.QueryCount, 1)
		req.Category = id.CategoryMedications
		_, err := exec.Execute(s.ctx, s.patient, req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("mechanism must suit the query type", func() {
		p := s.createPool(1)
		req := s.request(p, models.QueryMedian, 1)
		req.Grid = &mechanism.Grid{Lower: 0, Upper: 10, Step: 1}
		req.Params.Mechanism = budget.MechanismLaplace
		_, err := exec.Execute(s.ctx, s.patient, req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("gaussian requires delta", func() {
		p := s.createPool(1)
		_, err := exec.Execute(s.ctx, s.patient, s.request(p, models.QueryAverage, 1))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidDelta))
	})

	s.Run("invalid epsilon", func() {
		p := s.createPool(1)
		_, err := exec.Execute(s.ctx, s.patient, s.request(p, models.QueryCount, 0))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidEpsilon))
	})
}

func (s *ServiceSuite) TestBudgetRefusal() {
	p := s.createPool(1)
	s.contribute(p, values(5)...)
	exec := s.executor(fixedSource(0.5))

	_, err := exec.Execute(s.ctx, s.patient, s.request(p, models.QueryCount, 8))
	s.Require().NoError(err)

	_, err = exec.Execute(s.ctx, s.patient, s.request(p, models.QueryCount, 3))
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientBudget))
	pct, ok := dErrors.Meta(err, dErrors.MetaPercentRemaining)
	s.True(ok)
	s.InDelta(20.0, pct, 1e-9)

	view, err := s.privacy.GetStatus(s.ctx, s.patient, p.ID)
	s.Require().NoError(err)
	s.InDelta(8.0, view.Status.Consumed, 1e-12)
	s.Equal(int64(1), view.Entry.QueryCount)
	s.Contains(s.actions(), string(audit.EventQueryRejected))
}

func (s *ServiceSuite) TestConcurrentQueriesShareOneBudget() {
	p := s.createPool(1)
	s.contribute(p, values(5)...)
	exec := s.executor(fixedSource(0.5))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = exec.Execute(s.ctx, s.patient, s.request(p, models.QuerySum, 6))
		}()
	}
	wg.Wait()

	succeeded, refused := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case dErrors.HasCode(err, dErrors.CodeInsufficientBudget):
			refused++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, succeeded)
	s.Equal(1, refused)

	view, err := s.privacy.GetStatus(s.ctx, s.patient, p.ID)
	s.Require().NoError(err)
	s.InDelta(6.0, view.Status.Consumed, 1e-12)
}

func (s *ServiceSuite) TestQueryOnBehalfOfPatient() {
	p := s.createPool(1)
	s.contribute(p, values(5)...)
	exec := s.executor(fixedSource(0.5))
	researcher := id.AgentID(uuid.New())

	s.Run("denied without consent", func() {
		_, err := exec.Execute(s.ctx, researcher, s.request(p, models.QueryCount, 1))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("aggregate consent authorizes", func() {
		_, err := s.consents.Grant(s.ctx, s.patient, consentmodel.Terms{
			Grantee:        consentmodel.Grantee{Kind: consentmodel.GranteeAgent, Agent: researcher},
			Scope:          consentmodel.ScopeAggregateOnly,
			DataCategories: []id.DataCategory{id.CategoryLabResults},
			Purpose:        "population study",
		})
		s.Require().NoError(err)

		res, err := exec.Execute(s.ctx, researcher, s.request(p, models.QueryCount, 1))
		s.Require().NoError(err)
		s.Equal(1.0, res.Value)
	})
}
