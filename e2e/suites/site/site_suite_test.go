package sitetest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/thesipincafe/site-e2e/e2e/framework/assets"
	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/config"
	"github.com/thesipincafe/site-e2e/e2e/framework/fixtures"
	"github.com/thesipincafe/site-e2e/e2e/framework/logging"
	"github.com/thesipincafe/site-e2e/e2e/framework/results"
	"github.com/thesipincafe/site-e2e/e2e/framework/runner"
	"github.com/thesipincafe/site-e2e/e2e/framework/spec"
	"github.com/thesipincafe/site-e2e/e2e/framework/steps"
)

var (
	cfg       *config.Config
	siteRun   *runner.Runner
	collected []results.ScenarioResult
	catalogue = mustLoadCatalogue()
)

// TestSite drives the scenario catalogue against a running copy of the site.
// It is skipped unless E2E_BASE_URL is set.
func TestSite(t *testing.T) {
	if err := loadEnvFile(); err != nil {
		t.Fatalf("load .env: %v", err)
	}
	if os.Getenv("E2E_BASE_URL") == "" {
		t.Skip("E2E_BASE_URL is not set")
	}
	RegisterFailHandler(Fail)

	sc, _ := GinkgoConfiguration()
	sc.Timeout = 30 * time.Minute
	RunSpecs(t, "Sip-In Cafe site", sc)
}

// loadEnvFile walks up from the working directory to the first .env file.
func loadEnvFile() error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	for {
		envFile := filepath.Join(dir, ".env")
		if _, err := os.Stat(envFile); err == nil {
			return godotenv.Load(envFile)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

func mustLoadCatalogue() []spec.Scenario {
	scenarios, err := spec.LoadScenarios(filepath.Join("..", "..", "specs"))
	if err != nil {
		panic("load scenario catalogue: " + err.Error())
	}
	return scenarios
}

var _ = BeforeSuite(func() {
	var err error
	cfg, err = config.Load(nil)
	Expect(err).ToNot(HaveOccurred())
	cfg.SpecDir = filepath.Join("..", "..", "specs")
	cfg.FixturesPath = filepath.Join("..", "..", "fixtures", "site.yaml")

	logger, err := logging.NewLogger(cfg)
	Expect(err).ToNot(HaveOccurred())

	Expect(assets.Localize(context.Background(), cfg, logger)).To(Succeed())

	fixtureRegistry, err := fixtures.LoadRegistry(cfg.FixturesPath)
	Expect(err).ToNot(HaveOccurred())

	reg := steps.NewRegistry()
	steps.RegisterDefaults(reg)
	for i := range catalogue {
		Expect(reg.Validate(&catalogue[i])).To(Succeed())
	}

	start := browser.Playwright(browser.PlaywrightOptions{Install: cfg.InstallBrowsers})
	siteRun, err = runner.NewRunner(cfg, logger.With(zap.String("suite", "site")), reg, fixtureRegistry, start, nil)
	Expect(err).ToNot(HaveOccurred())
})

var _ = AfterSuite(func() {
	if siteRun == nil {
		return
	}
	Expect(siteRun.Sessions().Active()).To(BeZero(), "browser sessions leaked")
	run := &results.RunResult{RunID: cfg.RunID, Scenarios: collected}
	Expect(siteRun.FlushArtifacts(context.Background(), run)).To(Succeed())
})
