package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/barber-queue/internal/domain"
	"github.com/spec-kit/barber-queue/internal/repository"
	apperrors "github.com/spec-kit/barber-queue/pkg/apperrors"
)

const principalKey = "auth_principal"

// Principal represents the authenticated barber behind a staff request.
type Principal struct {
	Barber *domain.Barber
}

// Middleware validates bearer tokens and loads the barber principal.
type Middleware struct {
	tokens  *TokenManager
	barbers repository.BarberRepository
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager, barbers repository.BarberRepository) *Middleware {
	return &Middleware{tokens: tokens, barbers: barbers}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if claims.Subject != domain.SubjectTypeBarber {
		return apperrors.NewUnauthorized("unknown subject")
	}

	barber, err := m.barbers.GetByID(c.Context(), claims.SubjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("barber not found")
		}
		return apperrors.MapError(err)
	}

	c.Locals(principalKey, &Principal{Barber: barber})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated principal, if any.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	principal, ok := c.Locals(principalKey).(*Principal)
	return principal, ok && principal != nil
}
