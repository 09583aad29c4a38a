// Package common holds agent setup and response assertions shared by features.
package common

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario context these steps need.
type TestContext interface {
	Agent(name string, roles ...string) error
	Request(method, path, as string, body any) error
	Status() int
	Raw() string
	Field(path string) (any, error)
}

// RegisterSteps registers agent and assertion steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the service is healthy$`, steps.serviceHealthy)
	ctx.Step(`^an agent "([^"]*)"$`, steps.agent)
	ctx.Step(`^an agent "([^"]*)" with role "([^"]*)"$`, steps.agentWithRole)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the error should be "([^"]*)"$`, steps.errorShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.fieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be about ([\d.]+)$`, steps.fieldShouldBeAbout)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) serviceHealthy(context.Context) error {
	if err := s.tc.Request("GET", "/healthz", "", nil); err != nil {
		return err
	}
	return s.statusShouldBe(context.Background(), 200)
}

func (s *commonSteps) agent(_ context.Context, name string) error {
	return s.tc.Agent(name)
}

func (s *commonSteps) agentWithRole(_ context.Context, name, role string) error {
	return s.tc.Agent(name, role)
}

func (s *commonSteps) statusShouldBe(_ context.Context, want int) error {
	if got := s.tc.Status(); got != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, got, s.tc.Raw())
	}
	return nil
}

func (s *commonSteps) errorShouldBe(ctx context.Context, code string) error {
	return s.fieldShouldBe(ctx, "error", code)
}

func (s *commonSteps) fieldShouldBe(_ context.Context, path, want string) error {
	v, err := s.tc.Field(path)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("expected %s to be %q, got %q", path, want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeAbout(_ context.Context, path, want string) error {
	v, err := s.tc.Field(path)
	if err != nil {
		return err
	}
	got, ok := v.(float64)
	if !ok {
		return fmt.Errorf("%s is not a number: %v", path, v)
	}
	expected, err := strconv.ParseFloat(want, 64)
	if err != nil {
		return err
	}
	if math.Abs(got-expected) > 1e-6 {
		return fmt.Errorf("expected %s to be %g, got %g", path, expected, got)
	}
	return nil
}
