package aws

import (
	"context"
	"errors"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSTSAPI struct {
	calls int
	out   *sts.GetCallerIdentityOutput
	err   error
}

func (m *mockSTSAPI) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	m.calls++
	return m.out, m.err
}

func TestResolveAccount(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		want       string
		wantCalls  int
	}{
		{"explicit account", "111122223333", "111122223333", 0},
		{"placeholder", PlaceholderAccount, "123456789012", 1},
		{"empty", "", "123456789012", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSTSAPI{out: &sts.GetCallerIdentityOutput{Account: awssdk.String("123456789012")}}
			got, err := ResolveAccount(context.Background(), mock, tt.configured)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, mock.calls)
		})
	}
}

func TestResolveAccount_Error(t *testing.T) {
	mock := &mockSTSAPI{err: errors.New("expired token")}
	_, err := ResolveAccount(context.Background(), mock, PlaceholderAccount)
	assert.ErrorContains(t, err, "expired token")
}
