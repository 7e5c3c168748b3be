package services

import (
	"errors"

	"gorm.io/gorm"

	apierrors "github.com/yukikurage/annotation-api/internal/errors"
)

var (
	ErrTaskNotFound       = apierrors.New(apierrors.KindNotFound, "task not found")
	ErrImageNotFound      = apierrors.New(apierrors.KindNotFound, "image not found")
	ErrAnnotationNotFound = apierrors.New(apierrors.KindNotFound, "annotation not found")
	ErrUserNotFound       = apierrors.New(apierrors.KindNotFound, "user not found")
	ErrExportJobNotFound  = apierrors.New(apierrors.KindNotFound, "export job not found")

	ErrTaskAccessDenied = apierrors.New(apierrors.KindForbidden, "user does not have access to this task")
	ErrStaffOnly        = apierrors.New(apierrors.KindForbidden, "only administrators and engineers can perform this action")
	ErrAdminOnly        = apierrors.New(apierrors.KindForbidden, "only administrators can perform this action")
)

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// translateNotFound swaps a missing-row error for a domain sentinel and
// passes every other error through.
func translateNotFound(err error, notFound error) error {
	if isNotFound(err) {
		return notFound
	}
	return err
}

func invalid(reason string, err error) error {
	return apierrors.Wrap(apierrors.KindValidation, reason, err)
}
