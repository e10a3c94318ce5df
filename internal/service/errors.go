package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/go-playground/validator/v10"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrEventExists   = errors.New("event already exists")
	ErrVideoNotFound = errors.New("video not found")

	ErrNoSlotsRequested    = errors.New("no slots requested")
	ErrTooManySlots        = errors.New("too many slots requested")
	ErrDuplicateSlot       = errors.New("slot requested more than once")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotAlreadyAssigned = errors.New("slot already assigned")
	ErrSlotsNotConsecutive = errors.New("slots must be consecutive")
	ErrSlotExists          = errors.New("slot already exists")

	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidState = errors.New("operation not allowed in the current state")
)

// SlotError ties a slot failure to the instant it concerns.
type SlotError struct {
	Err      error
	DateTime time.Time
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, e.DateTime.UTC().Format(time.RFC3339))
}

func (e *SlotError) Unwrap() error { return e.Err }

// IsSlotConflict reports whether err means the requested slots are no longer
// claimable as asked. Callers should refetch slot state and let the user
// choose again.
func IsSlotConflict(err error) bool {
	return errors.Is(err, ErrSlotAlreadyAssigned) ||
		errors.Is(err, ErrSlotNotFound) ||
		errors.Is(err, ErrSlotsNotConsecutive) ||
		errors.Is(err, ErrSlotExists)
}

// RejectionError is returned by the registration flow when an eligibility
// check denies the request.
type RejectionError struct {
	Decision model.Decision
}

func (e *RejectionError) Error() string { return e.Decision.Reason }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}
