package httpapi

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/i474232898/smhi-opendata/internal/fetch"
	"github.com/i474232898/smhi-opendata/internal/geo"
	"github.com/i474232898/smhi-opendata/internal/grid"
	"github.com/i474232898/smhi-opendata/internal/metobs"
	"github.com/i474232898/smhi-opendata/internal/scheduler"
	"github.com/i474232898/smhi-opendata/internal/smhi"
	"github.com/i474232898/smhi-opendata/internal/strang"
)

var validate = validator.New()

// RequestIDHeader carries the id assigned to every request.
const RequestIDHeader = "X-Request-ID"

// Prober reports the last catalog probe.
type Prober interface {
	Last() scheduler.Status
}

// Deps are the clients the routes serve from. Nil clients disable their routes.
type Deps struct {
	Service *smhi.Service
	Strang  *strang.Client
	Mesan   *grid.Client
	Metfcst *grid.Client
	Probe   Prober
}

// RequestID assigns an X-Request-ID unless the caller sent one.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Locals("requestid", id)
		return c.Next()
	}
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":     true,
		"message":   err.Error(),
		"requestId": c.Locals("requestid"),
	})
}

// statusFor maps client errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, metobs.ErrNotFound),
		errors.Is(err, metobs.ErrEmptyData),
		errors.Is(err, geo.ErrCityNotFound),
		errors.Is(err, smhi.ErrNoStation):
		return fiber.StatusNotFound
	case errors.Is(err, fetch.ErrOutOfRange),
		errors.Is(err, metobs.ErrSelectionMissing),
		errors.Is(err, metobs.ErrSelectionAmbiguous),
		errors.Is(err, strang.ErrUnknownParameter),
		errors.Is(err, strang.ErrInvalidCoordinates),
		errors.Is(err, strang.ErrBadDateFormat),
		errors.Is(err, strang.ErrDateOutOfRange),
		errors.Is(err, strang.ErrMissingDateWithInterval),
		errors.Is(err, strang.ErrBadInterval),
		errors.Is(err, grid.ErrInvalidCoordinates),
		errors.Is(err, grid.ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, geo.ErrNoGeocoder):
		return fiber.StatusNotImplemented
	default:
		return fiber.StatusBadGateway
	}
}

func upstreamError(err error) error {
	return fiber.NewError(statusFor(err), err.Error())
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "ok",
			"service": "smhi-opendata",
		}
		if deps.Probe != nil {
			last := deps.Probe.Last()
			body["catalog"] = last
			if !last.CheckedAt.IsZero() && !last.Healthy {
				body["status"] = "degraded"
			}
		}
		return c.JSON(body)
	})

	v1 := app.Group("/api/v1")

	if deps.Service != nil {
		registerMetObs(v1.Group("/metobs"), deps.Service)
	}
	if deps.Strang != nil {
		registerStrang(v1.Group("/strang"), deps.Strang)
	}
	if deps.Mesan != nil {
		registerGrid(v1.Group("/mesan"), deps.Mesan)
	}
	if deps.Metfcst != nil {
		registerGrid(v1.Group("/metfcst"), deps.Metfcst)
	}
}

func registerMetObs(r fiber.Router, service *smhi.Service) {
	r.Get("/parameters", func(c *fiber.Ctx) error {
		params, err := service.Parameters(c.UserContext())
		if err != nil {
			return upstreamError(err)
		}
		out := make([]fiber.Map, 0, len(params.Resource))
		for _, p := range params.Resource {
			out = append(out, fiber.Map{
				"id":      p.ID(),
				"title":   p.Title,
				"summary": p.Summary,
				"unit":    p.Unit,
			})
		}
		return c.JSON(out)
	})

	r.Get("/stations", func(c *fiber.Ctx) error {
		var q stationsQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if q.Position != nil {
			near, err := service.StationsNear(c.UserContext(), q.Parameter, *q.Position.Lat, *q.Position.Lon)
			if err != nil {
				return upstreamError(err)
			}
			return c.JSON(near)
		}

		stations, err := service.Stations(c.UserContext(), q.Parameter)
		if err != nil {
			return upstreamError(err)
		}
		return c.JSON(fiber.Map{
			"valueType":   stations.ValueType,
			"stationSets": stations.StationSets,
			"stations":    stations.Stations,
		})
	})

	r.Get("/observations", func(c *fiber.Ctx) error {
		var q observationsQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		ctx := c.UserContext()
		period := metobs.PeriodKind(q.Period)

		switch {
		case q.FillRadius > 0:
			filled, err := service.FillGaps(ctx, q.Parameter, q.Station, period, q.FillRadius)
			if err != nil {
				return upstreamError(err)
			}
			return c.JSON(fiber.Map{
				"station":  q.Station,
				"metadata": filled.Metadata,
				"data":     filled.Table,
				"filledBy": filled.Sources,
				"gapsLeft": filled.Gaps,
			})

		case q.Station > 0:
			obs, err := service.Observations(ctx, q.Parameter, q.Station, period)
			if err != nil {
				return upstreamError(err)
			}
			return c.JSON(fiber.Map{"station": q.Station, "metadata": obs.Metadata, "data": obs.Table})

		case q.StationSet != "":
			obs, err := service.StationSetObservations(ctx, q.Parameter, q.StationSet, period)
			if err != nil {
				return upstreamError(err)
			}
			return c.JSON(fiber.Map{"stationSet": q.StationSet, "metadata": obs.Metadata, "data": obs.Table})

		case q.Position != nil:
			obs, err := service.ObservationsNear(ctx, q.Parameter, *q.Position.Lat, *q.Position.Lon, period)
			if err != nil {
				return upstreamError(err)
			}
			return c.JSON(fiber.Map{"station": obs.Station, "metadata": obs.Metadata, "data": obs.Table})

		default:
			obs, err := service.ObservationsForCity(ctx, q.Parameter, q.City, q.Country, period)
			if err != nil {
				return upstreamError(err)
			}
			return c.JSON(fiber.Map{"station": obs.Station, "metadata": obs.Metadata, "data": obs.Table})
		}
	})
}

func registerStrang(r fiber.Router, client *strang.Client) {
	r.Get("/parameters", func(c *fiber.Ctx) error {
		params := strang.Parameters()
		out := make([]fiber.Map, 0, len(params))
		for _, p := range params {
			out = append(out, fiber.Map{
				"id":       p.ID,
				"meaning":  p.Meaning,
				"timeFrom": p.TimeFrom,
			})
		}
		return c.JSON(out)
	})

	r.Get("/point", func(c *fiber.Ctx) error {
		parameter, err := intQuery(c, "parameter")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		lat, err := floatQuery(c, "lat")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		lon, err := floatQuery(c, "lon")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		tbl, err := client.Point(c.UserContext(), strang.PointRequest{
			Lat:       lat,
			Lon:       lon,
			Parameter: parameter,
			From:      c.Query("from"),
			To:        c.Query("to"),
			Interval:  strang.Interval(c.Query("interval")),
		})
		if err != nil {
			return upstreamError(err)
		}
		return c.JSON(tbl)
	})

	r.Get("/multipoint", func(c *fiber.Ctx) error {
		parameter, err := intQuery(c, "parameter")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		tbl, err := client.Multipoint(c.UserContext(), strang.MultipointRequest{
			Parameter: parameter,
			ValidTime: c.Query("valid_time"),
			Interval:  strang.Interval(c.Query("interval")),
		})
		if err != nil {
			return upstreamError(err)
		}
		return c.JSON(tbl)
	})
}

func registerGrid(r fiber.Router, client *grid.Client) {
	r.Get("/point", func(c *fiber.Ctx) error {
		var q positionQuery
		if err := q.bind(c, true); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		fc, err := client.Point(c.UserContext(), *q.Lat, *q.Lon)
		if err != nil {
			return upstreamError(err)
		}
		return c.JSON(fiber.Map{
			"approvedTime":  fc.ApprovedTime,
			"referenceTime": fc.ReferenceTime,
			"units":         fc.Units,
			"data":          fc.Table,
		})
	})

	r.Get("/validtimes", func(c *fiber.Ctx) error {
		times, err := client.ValidTimes(c.UserContext())
		if err != nil {
			return upstreamError(err)
		}
		return c.JSON(times)
	})
}

// positionQuery holds an optional lat/lon pair.
type positionQuery struct {
	Lat *float64 `validate:"required,gte=-90,lte=90"`
	Lon *float64 `validate:"required,gte=-180,lte=180"`
}

func (p *positionQuery) bind(c *fiber.Ctx, required bool) error {
	var err error
	if p.Lat, err = floatQuery(c, "lat"); err != nil {
		return err
	}
	if p.Lon, err = floatQuery(c, "lon"); err != nil {
		return err
	}
	if !required && p.Lat == nil && p.Lon == nil {
		return nil
	}
	return validate.Struct(p)
}

// stationsQuery holds query parameters for the stations endpoint.
type stationsQuery struct {
	Parameter int `query:"parameter" validate:"required,gt=0"`
	Position  *positionQuery
}

func (q *stationsQuery) bind(c *fiber.Ctx) error {
	if err := c.QueryParser(q); err != nil {
		return err
	}
	if err := validate.Struct(q); err != nil {
		return err
	}
	var pos positionQuery
	if err := pos.bind(c, false); err != nil {
		return err
	}
	if pos.Lat != nil {
		q.Position = &pos
	}
	return nil
}

// observationsQuery holds query parameters for the observations endpoint.
// Exactly one of station, station_set, lat/lon and city picks the source.
type observationsQuery struct {
	Parameter  int     `query:"parameter" validate:"required,gt=0"`
	Period     string  `query:"period" validate:"required,oneof=latest-hour latest-day latest-months corrected-archive"`
	Station    int     `query:"station" validate:"omitempty,gt=0"`
	StationSet string  `query:"station_set"`
	City       string  `query:"city"`
	Country    string  `query:"country"`
	FillRadius float64 `query:"fill_radius" validate:"omitempty,gt=0,lte=1000"`
	Position   *positionQuery
}

func (q *observationsQuery) bind(c *fiber.Ctx) error {
	if err := c.QueryParser(q); err != nil {
		return err
	}
	if q.Period == "" {
		q.Period = string(metobs.CorrectedArchive)
	}
	if err := validate.Struct(q); err != nil {
		return err
	}

	var pos positionQuery
	if err := pos.bind(c, false); err != nil {
		return err
	}
	if pos.Lat != nil {
		q.Position = &pos
	}

	sources := 0
	for _, set := range []bool{q.Station > 0, q.StationSet != "", q.Position != nil, strings.TrimSpace(q.City) != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return errors.New("exactly one of station, station_set, lat/lon or city is required")
	}
	if q.FillRadius > 0 && q.Station == 0 {
		return errors.New("fill_radius needs station")
	}
	return nil
}

func intQuery(c *fiber.Ctx, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, errors.New(name + " query parameter is required")
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("invalid " + name + ": " + v)
	}
	return n, nil
}

// floatQuery returns nil when the parameter is absent.
func floatQuery(c *fiber.Ctx, name string) (*float64, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, errors.New("invalid " + name + ": " + v)
	}
	return &f, nil
}
