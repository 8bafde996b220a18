// Package docker renders the container image definitions for the bybit-mcp
// service. Dependencies are installed before the source is copied so that
// source-only changes reuse the dependency layer.
package docker

import (
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

const servicePort = "8080"

// The standard image. The service owes the platform exactly two things:
// it listens on port 8080 and starts with the launch command below.
const standardTemplate = `FROM python:3.12-slim

WORKDIR /app

COPY pyproject.toml ./
RUN pip install --no-cache-dir .

COPY src/ ./src/
RUN pip install --no-cache-dir -e .

ENV PORT={{.Port}}
EXPOSE {{.Port}}

ENTRYPOINT ["python", "-m", "bybit_mcp.server"]
`

// The hardened image additionally drops root before the entry point runs.
const hardenedTemplate = `FROM python:3.12-slim

WORKDIR /app

COPY pyproject.toml ./
RUN pip install --no-cache-dir .

COPY src/ ./src/
RUN pip install --no-cache-dir -e .

RUN groupadd --system app && \
	useradd --system --gid app --home-dir /app app && \
	chown -R app:app /app
USER app

ENV PORT={{.Port}}
EXPOSE {{.Port}}

ENTRYPOINT ["python", "-m", "bybit_mcp.server"]
`

type templateData struct {
	Port string
}

// GenerateDockerfile returns the standard image definition.
func GenerateDockerfile() (string, error) {
	return render(standardTemplate)
}

// GenerateHardenedDockerfile returns the image definition that runs the
// service as a non-root user.
func GenerateHardenedDockerfile() (string, error) {
	return render(hardenedTemplate)
}

// WriteDockerfiles writes both variants into targetDir as 'Dockerfile' and
// 'Dockerfile.hardened'.
func WriteDockerfiles(targetDir string) error {
	standard, err := GenerateDockerfile()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(targetDir, "Dockerfile"), []byte(standard), 0600); err != nil {
		return err
	}
	hardened, err := GenerateHardenedDockerfile()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(targetDir, "Dockerfile.hardened"), []byte(hardened), 0600)
}

func render(tmpl string) (string, error) {
	parsed, err := template.New("dockerfile").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := parsed.Execute(&sb, templateData{Port: servicePort}); err != nil {
		return "", err
	}
	return sb.String(), nil
}
