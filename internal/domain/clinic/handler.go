package clinic

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/chat-incom/agendamento/internal/platform/auth"
	"github.com/chat-incom/agendamento/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public directory on api and the management
// endpoints on admin.
func (h *Handler) RegisterRoutes(api *echo.Group, admin *echo.Group) {
	api.GET("/specialties", h.ListSpecialties)
	api.GET("/insurances", h.ListInsurances)
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.GET("/doctors/:id/insurances", h.ListDoctorInsurances)

	w := admin.Group("", auth.RequireRole(auth.RoleAdmin))
	w.GET("/specialties/:id", h.GetSpecialty)
	w.POST("/specialties", h.CreateSpecialty)
	w.PUT("/specialties/:id", h.UpdateSpecialty)
	w.DELETE("/specialties/:id", h.DeleteSpecialty)
	w.GET("/insurances/:id", h.GetInsurance)
	w.POST("/insurances", h.CreateInsurance)
	w.PUT("/insurances/:id", h.UpdateInsurance)
	w.DELETE("/insurances/:id", h.DeleteInsurance)
	w.POST("/doctors", h.CreateDoctor)
	w.PUT("/doctors/:id", h.UpdateDoctor)
	w.DELETE("/doctors/:id", h.DeleteDoctor)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Specialty Handlers --

func (h *Handler) ListSpecialties(c echo.Context) error {
	items, err := h.svc.ListSpecialties(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

func (h *Handler) GetSpecialty(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sp, err := h.svc.GetSpecialty(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) CreateSpecialty(c echo.Context) error {
	var in SpecialtyInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sp, err := h.svc.CreateSpecialty(c.Request().Context(), in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, sp)
}

func (h *Handler) UpdateSpecialty(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in SpecialtyInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sp, err := h.svc.UpdateSpecialty(c.Request().Context(), id, in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, sp)
}

func (h *Handler) DeleteSpecialty(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSpecialty(c.Request().Context(), id); err != nil {
		return HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Insurance Handlers --

func (h *Handler) ListInsurances(c echo.Context) error {
	items, err := h.svc.ListInsurances(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

func (h *Handler) GetInsurance(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ins, err := h.svc.GetInsurance(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, ins)
}

func (h *Handler) CreateInsurance(c echo.Context) error {
	var in InsuranceInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ins, err := h.svc.CreateInsurance(c.Request().Context(), in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, ins)
}

func (h *Handler) UpdateInsurance(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in InsuranceInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ins, err := h.svc.UpdateInsurance(c.Request().Context(), id, in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, ins)
}

func (h *Handler) DeleteInsurance(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteInsurance(c.Request().Context(), id); err != nil {
		return HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Doctor Handlers --

func (h *Handler) ListDoctors(c echo.Context) error {
	q := DoctorQuery{Q: c.QueryParam("q")}
	if raw := c.QueryParam("specialty_id"); raw != "" {
		sid, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid specialty_id")
		}
		q.SpecialtyID = &sid
	}
	items, err := h.svc.ListDoctors(c.Request().Context(), q)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctorInsurances(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.AcceptedInsurances(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	var in DoctorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.CreateDoctor(c.Request().Context(), in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in DoctorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), id, in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), id); err != nil {
		return HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
