package usecase_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
)

func TestErrors_ErrorsAreDistinct(t *testing.T) {
	sentinels := []error{usecase.ErrIgnoredEvent, usecase.ErrTaskSettled, usecase.ErrNotApprovable}
	for i, a := range sentinels {
		gt.Value(t, a).NotNil()
		for j, b := range sentinels {
			if i != j {
				gt.Bool(t, errors.Is(a, b)).False()
			}
		}
	}
}
