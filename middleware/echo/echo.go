// Package echomw adapts the fhircodec HTTP boundary to echo.
package echomw

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reoring/fhircodec"
	"github.com/reoring/fhircodec/middleware"
)

// DecodeResource decodes the request body as a polymorphic resource, stores it
// in the request context on success, or returns 400 with an OperationOutcome.
func DecodeResource(c *fhircodec.Codec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			req := ec.Request()
			rec, err := c.Decode(req.Context(), req.Body, nil)
			if err != nil {
				iss, ok := fhircodec.AsIssues(err)
				if !ok {
					return echo.NewHTTPError(http.StatusBadRequest, err.Error())
				}
				body, mErr := middleware.OutcomeJSON(req.Context(), c, iss)
				if mErr != nil {
					return mErr
				}
				return ec.Blob(http.StatusBadRequest, middleware.ContentType, body)
			}
			ec.SetRequest(req.WithContext(middleware.ContextWithRecord(req.Context(), rec)))
			return next(ec)
		}
	}
}

// GetRecord fetches the decoded resource from the echo context.
func GetRecord(ec echo.Context) (*fhircodec.Record, bool) {
	return middleware.RecordFromContext(ec.Request().Context())
}

// Resource writes rec as a FHIR JSON response.
func Resource(ec echo.Context, c *fhircodec.Codec, status int, rec *fhircodec.Record) error {
	body, err := c.Marshal(ec.Request().Context(), rec)
	if err != nil {
		return err
	}
	return ec.Blob(status, middleware.ContentType, body)
}
