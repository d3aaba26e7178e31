// Package domain holds the ports of the notebook stage
package domain

import (
	"context"

	"kaggleharvest/internal/adapters/ingest/kaggle"
	"kaggleharvest/internal/core/report"
)

// Notebook re-exports the pulled kernel shape so callers need not import the adapter
type Notebook = kaggle.Notebook

// RunnerPort is what the CLI calls
type RunnerPort interface {
	Run(ctx context.Context, kernelsDir, outputDir, exclusionPath string) (*report.Report, error)
}

// Fetcher pulls one kernel's files
type Fetcher interface {
	FetchNotebookFiles(ctx context.Context, kernelID string) (Notebook, error)
}
