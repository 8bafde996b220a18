package provision

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bybit-mcp/mcp-deploy/pkg/deploy"
)

var _ = Describe("Setup script generation", func() {
	It("renders one create command per manifest resource", func() {
		manifest := wifManifest()
		script := GenerateSetupScript(manifest)

		Expect(script).To(HavePrefix("#!/bin/bash\nset -euo pipefail\n"))
		Expect(script).To(ContainSubstring("gcloud projects create bybit-mcp-prod"))
		Expect(script).To(ContainSubstring("gcloud artifacts repositories create bybit-mcp"))
		Expect(script).To(ContainSubstring("gcloud iam service-accounts create bybit-mcp-deployer"))
		for _, secretID := range manifest.SecretIDs() {
			Expect(script).To(ContainSubstring("gcloud secrets create " + secretID))
		}
		for _, role := range manifest.ProjectRoles() {
			Expect(script).To(ContainSubstring("--role=" + role))
		}
	})

	It("scopes the provider condition to the configured repository", func() {
		script := GenerateSetupScript(wifManifest())
		Expect(script).To(ContainSubstring(`assertion.repository == "acme/bybit-mcp"`))
		Expect(script).To(ContainSubstring("workload-identity-pools create github-pool"))
		Expect(script).To(ContainSubstring("providers create-oidc github-provider"))
		Expect(script).ToNot(ContainSubstring("keys create"))
	})

	It("mints a key only in the key variant", func() {
		script := GenerateSetupScript(keyManifest())
		Expect(script).To(ContainSubstring(
			"gcloud iam service-accounts keys create " + deploy.KeyFileName))
		Expect(script).ToNot(ContainSubstring("workload-identity-pools"))
	})

	It("enables every service in a single invocation", func() {
		manifest := wifManifest()
		script := GenerateSetupScript(manifest)
		Expect(script).To(ContainSubstring(
			"gcloud services enable " + strings.Join(manifest.Services(), " ")))
	})
})

var _ = Describe("WriteSetupScript", func() {
	It("writes the script to the target directory", func() {
		tempDir, err := os.MkdirTemp("", "plan")
		Expect(err).ToNot(HaveOccurred())
		defer os.RemoveAll(tempDir)

		Expect(WriteSetupScript(tempDir, wifManifest())).To(Succeed())

		content, err := os.ReadFile(filepath.Join(tempDir, "setup.sh"))
		Expect(err).ToNot(HaveOccurred())
		Expect(string(content)).To(ContainSubstring("gcloud projects create"))
	})
})
