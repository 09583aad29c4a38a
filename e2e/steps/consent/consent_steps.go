// Package consent holds steps for granting and revoking consents.
package consent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario context these steps need.
type TestContext interface {
	AgentID(name string) (string, error)
	Request(method, path, as string, body any) error
	Status() int
	Raw() string
	Field(path string) (any, error)
	Save(name, value string)
	Saved(name string) (string, error)
}

// RegisterSteps registers consent steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &consentSteps{tc: tc}

	ctx.Step(`^"([^"]*)" grants "([^"]*)" consent to "([^"]*)" for "([^"]*)"$`, steps.grant)
	ctx.Step(`^"([^"]*)" revokes the consent for "([^"]*)"$`, steps.revoke)
	ctx.Step(`^"([^"]*)" lists their consents$`, steps.list)
	ctx.Step(`^"([^"]*)" checks "([^"]*)" access to "([^"]*)" of "([^"]*)"$`, steps.checkAccess)
}

type consentSteps struct {
	tc TestContext
}

func consentKey(grantor string) string { return "consent:" + grantor }

func (s *consentSteps) grant(_ context.Context, grantor, scope, grantee, categories string) error {
	granteeID, err := s.tc.AgentID(grantee)
	if err != nil {
		return err
	}
	body := map[string]any{
		"grantee":         map[string]any{"kind": "agent", "agent": granteeID},
		"scope":           scope,
		"data_categories": strings.Split(categories, ","),
		"purpose":         "e2e " + scope,
	}
	if err := s.tc.Request("POST", "/consents", grantor, body); err != nil {
		return err
	}
	if s.tc.Status() != 201 {
		return fmt.Errorf("grant consent: status %d: %s", s.tc.Status(), s.tc.Raw())
	}
	hash, err := s.tc.Field("hash")
	if err != nil {
		return err
	}
	s.tc.Save(consentKey(grantor), fmt.Sprint(hash))
	return nil
}

func (s *consentSteps) revoke(_ context.Context, grantor, reason string) error {
	hash, err := s.tc.Saved(consentKey(grantor))
	if err != nil {
		return err
	}
	return s.tc.Request("POST", "/consents/"+hash+"/revoke", grantor, map[string]any{"reason": reason})
}

func (s *consentSteps) list(_ context.Context, grantor string) error {
	return s.tc.Request("GET", "/consents", grantor, nil)
}

func (s *consentSteps) checkAccess(_ context.Context, requester, permission, category, patient string) error {
	patientID, err := s.tc.AgentID(patient)
	if err != nil {
		return err
	}
	return s.tc.Request("POST", "/authorizations/check", requester, map[string]any{
		"patient":    patientID,
		"permission": permission,
		"category":   category,
	})
}
