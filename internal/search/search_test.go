package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samzong/searchbeam/internal/keypool"
)

func TestQuotaError_MasksKey(t *testing.T) {
	err := &QuotaError{Key: keypool.Credential("AIzaSySecretValue"), Reason: "quotaExceeded"}

	assert.NotContains(t, err.Error(), "SecretValue")
	assert.Contains(t, err.Error(), "AIzaSy...")

	var qe *QuotaError
	wrapped := errors.Join(errors.New("attempt 1"), err)
	assert.True(t, errors.As(wrapped, &qe))
	assert.Equal(t, keypool.Credential("AIzaSySecretValue"), qe.Key)
}

func TestUpstreamError(t *testing.T) {
	tests := []struct {
		name     string
		err      *UpstreamError
		wantText string
		wantUser string
	}{
		{
			name:     "message and status",
			err:      &UpstreamError{Status: 400, Message: "Invalid value"},
			wantText: "upstream status 400: Invalid value",
			wantUser: "Invalid value",
		},
		{
			name:     "wrapped transport error",
			err:      &UpstreamError{Err: context.DeadlineExceeded},
			wantText: "search request failed: context deadline exceeded",
			wantUser: "Search request failed",
		},
		{
			name:     "status only",
			err:      &UpstreamError{Status: 502},
			wantText: "search request failed: status 502",
			wantUser: "Search request failed",
		},
		{
			name:     "empty",
			err:      &UpstreamError{},
			wantText: "search request failed",
			wantUser: "Search request failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantText, tt.err.Error())
			assert.Equal(t, tt.wantUser, tt.err.UserMessage())
			assert.True(t, errors.Is(tt.err, ErrUpstreamFailed))
		})
	}
}

func TestUpstreamError_UnwrapsCause(t *testing.T) {
	err := &UpstreamError{Err: context.Canceled}

	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, strings.Contains(err.Error(), "key="))
}
