// Package e2e runs the Gherkin features in features/ against a running
// server started with DEV_TOKENS=true.
package e2e

import (
	"github.com/cucumber/godog"

	"healthcommons/e2e/steps/common"
	"healthcommons/e2e/steps/consent"
	"healthcommons/e2e/steps/pools"
)

// RegisterSteps registers all step definitions from modular packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	consent.RegisterSteps(ctx, tc)
	pools.RegisterSteps(ctx, tc)
}
