package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/joseph-ayodele/rxverify/internal/common"
	"github.com/joseph-ayodele/rxverify/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// exportRegistry streams the registry as XLSX. Optional from/to query
// parameters (YYYY-MM-DD) bound the prescription date.
func (s *HTTPServer) exportRegistry(c echo.Context) error {
	from, err := utils.ParseOptionalYMD(c.QueryParam("from"))
	if err != nil {
		return fmt.Errorf("%w: from must be YYYY-MM-DD", common.ErrInvalidInput)
	}
	to, err := utils.ParseOptionalYMD(c.QueryParam("to"))
	if err != nil {
		return fmt.Errorf("%w: to must be YYYY-MM-DD", common.ErrInvalidInput)
	}

	xlsx, err := s.exporter.ExportRegistryXLSX(c.Request().Context(), from, to)
	if err != nil {
		s.logger.Error("registry export failed", "error", err)
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="registry.xlsx"`)
	return c.Blob(http.StatusOK, xlsxContentType, xlsx)
}
