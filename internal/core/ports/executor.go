// Package ports defines the core interfaces for the application.
package ports

import (
	"context"
	"io"

	"go.trai.ch/kiln/internal/core/domain"
)

// Executor runs external toolchain processes.
//
//go:generate go run go.uber.org/mock/mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type Executor interface {
	// Run executes cmd, streaming its output to stdout and stderr.
	//
	// A non-zero exit is reported as *domain.ToolchainError carrying the exit
	// code and the tail of the error stream.
	Run(ctx context.Context, cmd domain.Command, stdout, stderr io.Writer) error
}
