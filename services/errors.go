package services

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
)

// Sentinel errors returned by the plain service methods. Handler methods map
// them to HTTP statuses with httpError.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInternalConsistency marks a violated post-condition (e.g. a balance
	// that would go negative after a pre-validated transition). It is logged
	// loudly and never swallowed.
	ErrInternalConsistency = errors.New("internal consistency violation")
)

// ValidationError rejects a request whose payload fails a precondition check
// (method mismatch, missing content, malformed schedule).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationErr(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// httpError translates a service error into a JSON response.
func httpError(c *fiber.Ctx, err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Message, "field": ve.Field})
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrInvalidState):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrInsufficientFunds):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrInternalConsistency):
		log.Printf("🚨 [CONSISTENCY] %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal consistency error"})
	default:
		log.Printf("DB/internal error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
