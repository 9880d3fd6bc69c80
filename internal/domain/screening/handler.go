package screening

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/visitprep/visitprep/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/screenings", h.List)
	api.GET("/screenings/types", h.ListTypes)
	api.POST("/screenings/regenerate-all", h.RegenerateAll)
	api.GET("/screenings/regenerate-all/:run_id", h.RunStatus)
	api.POST("/screenings/refresh-patient/:patient_id", h.RefreshPatient)
}

// List serves the filtered, paginated record set with per-status counts.
// Malformed filter and page values clamp instead of erroring.
func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	q := Query{
		Status:        c.QueryParam("status"),
		ScreeningType: c.QueryParam("screening_type"),
		Search:        c.QueryParam("search"),
		Page:          pg.Page,
		PageSize:      pg.PageSize,
	}
	result, err := h.svc.List(c.Request().Context(), q)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"types": h.svc.Types(),
	})
}

func (h *Handler) RegenerateAll(c echo.Context) error {
	run, err := h.svc.StartRegenerateAll()
	if errors.Is(err, ErrAlreadyRunning) {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": true,
			"status":  "already running",
			"run_id":  run.ID,
		})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set("Content-Location", "/api/v1/screenings/regenerate-all/"+run.ID.String())
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"success": true,
		"run_id":  run.ID,
		"status":  run.Status,
	})
}

func (h *Handler) RunStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid run_id")
	}
	run, err := h.svc.RunStatus(id)
	if errors.Is(err, ErrRunNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) RefreshPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	result, err := h.svc.RefreshPatient(c.Request().Context(), id)
	if errors.Is(err, ErrPatientNotFound) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"success": false,
			"error":   "patient not found",
		})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":       true,
		"updated_count": result.UpdatedCount,
	})
}
