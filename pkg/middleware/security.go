package middleware

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/pathlearn/authguard/pkg/security"
	"github.com/pathlearn/authguard/pkg/types"
)

const (
	// InteractionHeader carries the client-side interaction sample as
	// JSON produced by the form tracking script.
	InteractionHeader = "X-Authguard-Interaction"

	// ResultLocalsKey is where the verdict is stored for downstream
	// handlers once a request is admitted.
	ResultLocalsKey = "authguard_result"
)

// ActionResolver maps a request to the authentication action under
// evaluation. The default reads the "action" route parameter.
type ActionResolver func(c *fiber.Ctx) types.Action

type securityMiddleware struct {
	logger        *logrus.Logger
	orchestrator  *security.Orchestrator
	resolveAction ActionResolver
}

// NewSecurityMiddleware adapts the orchestrator to a Fiber handler:
// it builds the SecurityContext from the request, runs the pipeline
// and maps denials to 429/403 responses.
func NewSecurityMiddleware(
	logger *logrus.Logger,
	orchestrator *security.Orchestrator,
	resolveAction ActionResolver,
) Middleware {
	if resolveAction == nil {
		resolveAction = func(c *fiber.Ctx) types.Action {
			return types.Action(c.Params("action"))
		}
	}
	return &securityMiddleware{
		logger:        logger,
		orchestrator:  orchestrator,
		resolveAction: resolveAction,
	}
}

func (m *securityMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sc := m.buildContext(c)

		result := m.orchestrator.PerformSecurityCheck(c.UserContext(), sc)
		if !result.Allowed {
			status := fiber.StatusForbidden
			if result.RetryAfter > 0 {
				status = fiber.StatusTooManyRequests
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(result.RetryAfter))
			}
			return c.Status(status).JSON(fiber.Map{
				"error":            "request rejected",
				"code":             result.Code,
				"reasons":          result.Reasons,
				"requires_captcha": result.RequiresCaptcha,
			})
		}

		c.Locals(ResultLocalsKey, result)
		return c.Next()
	}
}

func (m *securityMiddleware) buildContext(c *fiber.Ctx) *types.SecurityContext {
	formData := make(map[string]string)
	args := c.Request().PostArgs()
	args.VisitAll(func(key, value []byte) {
		formData[string(key)] = string(value)
	})

	sc := &types.SecurityContext{
		Email:     c.FormValue("email"),
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Timestamp: time.Now(),
		Action:    m.resolveAction(c),
		FormData:  formData,
	}

	if raw := c.Get(InteractionHeader); raw != "" {
		var sample types.InteractionSample
		if err := json.Unmarshal([]byte(raw), &sample); err != nil {
			m.logger.WithError(err).Debug("discarding malformed interaction sample")
		} else {
			sc.Interaction = &sample
		}
	}

	return sc
}
