package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/joseph-ayodele/rxverify/internal/common"
)

const requestIDKey = "request_id"

// RequestID reuses an incoming X-Request-ID or mints one, and exposes it on
// the echo context, the request context and the response.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.New().String()
			}
			c.Set(requestIDKey, rid)
			c.Response().Header().Set(echo.HeaderXRequestID, rid)
			c.SetRequest(c.Request().WithContext(common.WithRequestID(c.Request().Context(), rid)))
			return next(c)
		}
	}
}

func Logger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get(requestIDKey).(string)

			err := next(c)
			if err != nil {
				// let the error handler write the status before we log it
				c.Error(err)
			}

			level := slog.LevelInfo
			if err != nil {
				level = slog.LevelError
			}
			logger.LogAttrs(req.Context(), level, "request",
				slog.String("request_id", rid),
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", c.Response().Status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		}
	}
}

func Recovery(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					var stack [4096]byte
					n := runtime.Stack(stack[:], false)
					logger.Error("panic recovered",
						"request_id", c.Get(requestIDKey),
						"panic", fmt.Sprintf("%v", r),
						"stack", string(stack[:n]),
					)
					err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error").
						SetInternal(fmt.Errorf("%w: panic: %v", common.ErrInternal, r))
				}
			}()
			return next(c)
		}
	}
}

// errorHandler renders every failure as {"error": "..."}.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := common.HTTPStatus(err)
		msg := err.Error()

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = fmt.Sprint(he.Message)
		}
		if code >= http.StatusInternalServerError {
			logger.Error("request failed", "request_id", c.Get(requestIDKey), "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, errorBody{Error: msg})
		}
		if err != nil {
			logger.Warn("failed to write error response", "error", err)
		}
	}
}

type errorBody struct {
	Error string `json:"error"`
}
