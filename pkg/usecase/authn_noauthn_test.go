package usecase_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
)

func TestNoAuthnUseCase(t *testing.T) {
	uc := usecase.NewNoAuthnUseCase(testTenant, "dev")

	t.Run("ValidateToken returns fixed principal", func(t *testing.T) {
		p, err := uc.ValidateToken(context.Background(), "")
		gt.NoError(t, err).Required()
		gt.Value(t, p.TenantID).Equal(testTenant)
		gt.Value(t, p.Subject).Equal("dev")
	})

	t.Run("IsNoAuthn returns true", func(t *testing.T) {
		gt.Bool(t, uc.IsNoAuthn()).True()
	})
}

func TestNoAuthnUseCaseImplementsInterface(t *testing.T) {
	var _ usecase.AuthUseCaseInterface = usecase.NewNoAuthnUseCase(testTenant, "dev")
}
