package e2e

import (
	"github.com/cucumber/godog"

	"chatline/e2e/steps/contacts"
)

// RegisterSteps registers all step definitions from modular packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	contacts.RegisterSteps(ctx, tc)
}
