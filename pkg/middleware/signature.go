package middleware

import (
	"net/http"
	"strings"

	"github.com/code-100-precent/calltrack/pkg/logger"
	"github.com/code-100-precent/calltrack/pkg/response"
	"github.com/code-100-precent/calltrack/pkg/signature"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CallbackURL the URL the provider signed: public base URL, request path and raw query
func CallbackURL(publicBaseURL string, r *http.Request) string {
	u := strings.TrimRight(publicBaseURL, "/") + r.URL.Path
	if r.URL.RawQuery != "" {
		u += "?" + r.URL.RawQuery
	}
	return u
}

// ProviderSignature rejects webhook requests whose signature does not verify,
// before any handler runs. The body is left readable for the handler.
func ProviderSignature(v *signature.Validator, publicBaseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := response.GetBody(c)
		if err != nil {
			logger.Warn("read webhook body", zap.Error(err))
			c.String(http.StatusUnauthorized, "Invalid signature")
			c.Abort()
			return
		}

		callbackURL := CallbackURL(publicBaseURL, c.Request)
		if !v.Validate(body, c.GetHeader(signature.HeaderName), callbackURL) {
			logger.Warn("webhook signature rejected",
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()))
			c.String(http.StatusUnauthorized, "Invalid signature")
			c.Abort()
			return
		}
		c.Next()
	}
}
