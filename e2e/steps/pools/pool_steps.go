// Package pools holds steps for pools, contributions, queries and budgets.
package pools

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario context these steps need.
type TestContext interface {
	Agent(name string, roles ...string) error
	AgentID(name string) (string, error)
	Request(method, path, as string, body any) error
	Status() int
	Raw() string
	Field(path string) (any, error)
	Save(name, value string)
	Saved(name string) (string, error)
}

// RegisterSteps registers pool steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &poolSteps{tc: tc}

	ctx.Step(`^"([^"]*)" creates pool "([^"]*)" for "([^"]*)" with a budget of ([\d.]+) per participant$`, steps.createPool)
	ctx.Step(`^(\d+) contributors share "([^"]*)" with "([^"]*)" in pool "([^"]*)"$`, steps.contributeMany)
	ctx.Step(`^"([^"]*)" runs a "([^"]*)" query on "([^"]*)" in pool "([^"]*)" with epsilon ([\d.]+)$`, steps.query)
	ctx.Step(`^"([^"]*)" views their budget in pool "([^"]*)"$`, steps.budget)
	ctx.Step(`^"([^"]*)" sets pool "([^"]*)" to "([^"]*)"$`, steps.setStatus)
}

type poolSteps struct {
	tc TestContext
}

func poolKey(name string) string { return "pool:" + name }

func (s *poolSteps) poolPath(name string) (string, error) {
	poolID, err := s.tc.Saved(poolKey(name))
	if err != nil {
		return "", err
	}
	return "/pools/" + poolID, nil
}

func (s *poolSteps) createPool(_ context.Context, creator, name, category, budget string) error {
	total, err := strconv.ParseFloat(budget, 64)
	if err != nil {
		return err
	}
	// Pool names are unique server-wide; scenarios may rerun against one server.
	body := map[string]any{
		"name":             fmt.Sprintf("%s %d", name, time.Now().UnixNano()),
		"data_categories":  []string{category},
		"default_epsilon":  1.0,
		"budget_per_user":  total,
		"min_contributors": 3,
	}
	if err := s.tc.Request("POST", "/pools", creator, body); err != nil {
		return err
	}
	if s.tc.Status() != 201 {
		return fmt.Errorf("create pool: status %d: %s", s.tc.Status(), s.tc.Raw())
	}
	poolID, err := s.tc.Field("id")
	if err != nil {
		return err
	}
	s.tc.Save(poolKey(name), fmt.Sprint(poolID))
	return nil
}

func (s *poolSteps) contributeMany(_ context.Context, n int, category, steward, pool string) error {
	path, err := s.poolPath(pool)
	if err != nil {
		return err
	}
	stewardID, err := s.tc.AgentID(steward)
	if err != nil {
		return err
	}
	for i := range n {
		contributor := fmt.Sprintf("%s-contributor-%d", pool, i)
		if err := s.tc.Agent(contributor); err != nil {
			return err
		}
		if err := s.tc.Request("POST", "/consents", contributor, map[string]any{
			"grantee":         map[string]any{"kind": "agent", "agent": stewardID},
			"scope":           "aggregate_only",
			"data_categories": []string{category},
			"purpose":         "pooled research",
		}); err != nil {
			return err
		}
		if s.tc.Status() != 201 {
			return fmt.Errorf("contributor consent: status %d: %s", s.tc.Status(), s.tc.Raw())
		}
		hash, err := s.tc.Field("hash")
		if err != nil {
			return err
		}
		if err := s.tc.Request("POST", path+"/contributions", contributor, map[string]any{
			"category":     category,
			"consent_hash": hash,
			"payload":      map[string]any{"value": float64(40 + i)},
		}); err != nil {
			return err
		}
		if s.tc.Status() != 201 {
			return fmt.Errorf("contribute: status %d: %s", s.tc.Status(), s.tc.Raw())
		}
	}
	return nil
}

func (s *poolSteps) query(_ context.Context, patient, queryType, category, pool, epsilon string) error {
	path, err := s.poolPath(pool)
	if err != nil {
		return err
	}
	eps, err := strconv.ParseFloat(epsilon, 64)
	if err != nil {
		return err
	}
	return s.tc.Request("POST", path+"/queries", patient, map[string]any{
		"category":   category,
		"query_type": queryType,
		"epsilon":    eps,
	})
}

func (s *poolSteps) budget(_ context.Context, patient, pool string) error {
	path, err := s.poolPath(pool)
	if err != nil {
		return err
	}
	return s.tc.Request("GET", path+"/budget", patient, nil)
}

func (s *poolSteps) setStatus(_ context.Context, creator, pool, status string) error {
	path, err := s.poolPath(pool)
	if err != nil {
		return err
	}
	return s.tc.Request("POST", path+"/status", creator, map[string]any{"status": status})
}
