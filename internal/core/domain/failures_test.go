package domain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

func TestFailures_MatchSentinels(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"fetch", &domain.FetchError{Kind: domain.FetchNotFound, URL: "http://x", Err: cause}, domain.ErrFetchFailed},
		{"patch", &domain.AlreadyPatchedError{Patch: "p", File: "f"}, domain.ErrAlreadyPatched},
		{"toolchain", &domain.ToolchainError{Command: "make", ExitCode: 2}, domain.ErrToolchainFailed},
		{"store", &domain.StoreError{Op: "publish", Key: "k", Err: cause}, domain.ErrStoreFailed},
		{"config", &domain.InvalidConfigurationError{Field: "os"}, domain.ErrInvalidConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)

			staged := &domain.StageError{Stage: domain.StateBuilding, ConfigKey: "k", Err: zerr.Wrap(tt.err, "wrapped")}
			assert.ErrorIs(t, staged, tt.sentinel)
		})
	}
}

func TestFetchError_KeepsCause(t *testing.T) {
	err := &domain.FetchError{Kind: domain.FetchNetworkTimeout, URL: "http://x", Err: context.DeadlineExceeded}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "network timeout")
}

func TestRetryable(t *testing.T) {
	assert.True(t, domain.Retryable(&domain.FetchError{Kind: domain.FetchNetworkTimeout}))
	assert.False(t, domain.Retryable(&domain.FetchError{Kind: domain.FetchChecksumMismatch}))
	assert.True(t, domain.Retryable(zerr.Wrap(&domain.StoreError{Op: "publish"}, "publish failed")))
	assert.False(t, domain.Retryable(&domain.ToolchainError{ExitCode: 1}))
}
