package httpapi

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/agrolab/agrologger/internal/agro"
	"github.com/agrolab/agrologger/internal/ingest"
)

var validate = validator.New()

// Deps bundles everything the HTTP handlers need.
type Deps struct {
	Registry   *agro.PhaseRegistry
	Aggregator *agro.Aggregator
	Ingest     *ingest.Service

	Fields     agro.FieldStore
	Readings   agro.ReadingStore
	Aggregates agro.AggregateStore
	GDD        agro.GDDSource

	// APIKey guards the /iot device endpoints.
	APIKey string
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	v1 := app.Group("/api/v1")

	v1.Get("/gdd/:fieldID", handleGDDSeries(deps))
	v1.Get("/temperature/:fieldID", handleTemperatureSeries(deps))
	v1.Get("/phase/:fieldID", handlePhaseList(deps))
	v1.Post("/phase", handlePhaseCreate(deps))
	v1.Get("/dashboard/:fieldID", handleDashboard(deps))
	v1.Post("/aggregation/run", handleAggregationRun(deps))

	iot := app.Group("/iot", requireAPIKey(deps.APIKey))
	iot.Post("/weather", handleIngest(deps))
}

// requireAPIKey rejects device requests without the shared key.
func requireAPIKey(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("X-API-Key") != apiKey {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid API key")
		}
		return c.Next()
	}
}

func parseFieldID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("fieldID")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid field id")
	}
	return int64(id), nil
}

// gddItem is one row of the cumulative GDD series response.
type gddItem struct {
	FieldID int64   `json:"field_id"`
	Date    string  `json:"date"`
	GDD     float64 `json:"gdd"`
	GDDSum  float64 `json:"gdd_sum"`
}

func handleGDDSeries(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fieldID, err := parseFieldID(c)
		if err != nil {
			return err
		}

		if _, err := deps.Fields.GetFieldInfo(c.Context(), fieldID); err != nil {
			if errors.Is(err, agro.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "field not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load field")
		}

		points, err := deps.GDD.SeriesForField(c.Context(), fieldID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load GDD series")
		}

		items := make([]gddItem, 0, len(points))
		for _, p := range points {
			items = append(items, gddItem{
				FieldID: p.FieldID,
				Date:    p.Date.Format("2006-01-02"),
				GDD:     p.GDD,
				GDDSum:  p.GDDSum,
			})
		}
		return c.JSON(items)
	}
}

// tempDailyItem is one row of the daily temperature response.
type tempDailyItem struct {
	FieldID int64   `json:"field_id"`
	Date    string  `json:"date"`
	TempMin float64 `json:"temp_min"`
	TempMax float64 `json:"temp_max"`
	TempAvg float64 `json:"temp_avg"`
}

func handleTemperatureSeries(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fieldID, err := parseFieldID(c)
		if err != nil {
			return err
		}

		if _, err := deps.Fields.GetFieldInfo(c.Context(), fieldID); err != nil {
			if errors.Is(err, agro.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "field not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load field")
		}

		aggs, err := deps.Aggregates.AggregatesForField(c.Context(), fieldID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load daily temperatures")
		}

		items := make([]tempDailyItem, 0, len(aggs))
		for _, a := range aggs {
			items = append(items, tempDailyItem{
				FieldID: a.FieldID,
				Date:    a.Date.Format("2006-01-02"),
				TempMin: a.TempMin,
				TempMax: a.TempMax,
				TempAvg: a.TempAvg,
			})
		}
		return c.JSON(items)
	}
}

// phaseStatusesForField resolves the field's hybrid and evaluates its phases
// against the latest cumulative GDD value.
func phaseStatusesForField(c *fiber.Ctx, deps Deps, fieldID int64) ([]agro.PhaseStatus, *agro.FieldInfo, float64, error) {
	info, err := deps.Fields.GetFieldInfo(c.Context(), fieldID)
	if err != nil {
		if errors.Is(err, agro.ErrNotFound) {
			return nil, nil, 0, fiber.NewError(fiber.StatusNotFound, "field not found")
		}
		return nil, nil, 0, fiber.NewError(fiber.StatusInternalServerError, "failed to load field")
	}

	currentGDD, err := deps.GDD.LatestCumulative(c.Context(), fieldID)
	if err != nil {
		return nil, nil, 0, fiber.NewError(fiber.StatusInternalServerError, "failed to load cumulative GDD")
	}

	phases, err := deps.Registry.ListPhases(c.Context(), info.HybridID)
	if err != nil {
		return nil, nil, 0, fiber.NewError(fiber.StatusInternalServerError, "failed to load phases")
	}

	return agro.EvaluatePhases(phases, currentGDD), info, currentGDD, nil
}

func handlePhaseList(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fieldID, err := parseFieldID(c)
		if err != nil {
			return err
		}

		statuses, _, _, err := phaseStatusesForField(c, deps, fieldID)
		if err != nil {
			return err
		}
		return c.JSON(statuses)
	}
}

// phaseCreateRequest is the body for creating a phase definition.
type phaseCreateRequest struct {
	HybridID  int64   `json:"hybrid_id" validate:"required"`
	PhaseName string  `json:"phase_name" validate:"required"`
	GDDFrom   float64 `json:"gdd_from" validate:"gte=0"`
	GDDTo     float64 `json:"gdd_to" validate:"gtefield=GDDFrom"`
}

func handlePhaseCreate(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req phaseCreateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		phase, err := deps.Registry.CreatePhase(c.Context(), req.HybridID, req.PhaseName, req.GDDFrom, req.GDDTo)
		if err != nil {
			switch {
			case errors.Is(err, agro.ErrPhaseCapacity), errors.Is(err, agro.ErrInvalidPhaseRange):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			default:
				return fiber.NewError(fiber.StatusInternalServerError, "failed to create phase")
			}
		}

		// The freshly created phase has no evaluation context yet; current
		// GDD, activity and remaining units are placeholders.
		return c.Status(fiber.StatusCreated).JSON(agro.PhaseStatus{
			PhaseName:  phase.PhaseName,
			GDDFrom:    phase.GDDFrom,
			GDDTo:      phase.GDDTo,
			CurrentGDD: 0,
			IsActive:   false,
			GDDLeft:    0,
			Completed:  false,
		})
	}
}

// currentStatus is the headline gauge block on the dashboard.
type currentStatus struct {
	GDD     float64 `json:"gdd"`
	TempAvg float64 `json:"temp_avg"`
}

// liveStatus mirrors the latest raw reading of the field's logger.
type liveStatus struct {
	Battery     *float64  `json:"battery"`
	Signal      *float64  `json:"signal"`
	Pressure    *float64  `json:"pressure"`
	Temperature *float64  `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
}

type dashboardResponse struct {
	Field   *agro.FieldInfo    `json:"field"`
	Current currentStatus      `json:"current"`
	Phases  []agro.PhaseStatus `json:"phases"`
	Live    *liveStatus        `json:"live"`
}

func handleDashboard(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fieldID, err := parseFieldID(c)
		if err != nil {
			return err
		}

		statuses, info, currentGDD, err := phaseStatusesForField(c, deps, fieldID)
		if err != nil {
			return err
		}

		resp := dashboardResponse{
			Field:   info,
			Current: currentStatus{GDD: currentGDD},
			Phases:  statuses,
		}

		if latest, err := deps.Aggregates.LatestAggregate(c.Context(), fieldID); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load latest aggregate")
		} else if latest != nil {
			resp.Current.TempAvg = latest.TempAvg
		}

		reading, err := deps.Readings.LatestReadingForLogger(c.Context(), info.LoggerID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load live status")
		}
		if reading != nil {
			resp.Live = &liveStatus{
				Battery:     reading.Battery,
				Signal:      reading.Signal,
				Pressure:    reading.Pressure,
				Temperature: reading.Temp,
				Timestamp:   reading.Timestamp,
			}
		}

		return c.JSON(resp)
	}
}

func handleAggregationRun(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		day := time.Now().UTC()
		if dateStr := c.Query("date"); dateStr != "" {
			parsed, err := time.Parse("2006-01-02", dateStr)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid date; use YYYY-MM-DD")
			}
			day = parsed
		}

		report, err := deps.Aggregator.RunDailyBatch(c.Context(), day)
		if err != nil {
			if errors.Is(err, agro.ErrBatchRunning) {
				return fiber.NewError(fiber.StatusConflict, "a batch is already running")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to run aggregation batch")
		}

		return c.JSON(report)
	}
}

// ingestRequest is the telemetry payload pushed by field loggers.
type ingestRequest struct {
	LoggerID     int64     `json:"logger_id" validate:"required"`
	SerialNumber string    `json:"serial_number" validate:"required"`
	Timestamp    time.Time `json:"timestamp" validate:"required"`

	Temp     *float64 `json:"temp"`
	Humidity *float64 `json:"humidity"`
	Pressure *float64 `json:"pressure"`
	Battery  *float64 `json:"battery"`
	Signal   *float64 `json:"signal"`
}

func handleIngest(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ingestRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		err := deps.Ingest.Submit(c.Context(), ingest.Submission{
			LoggerID:     req.LoggerID,
			SerialNumber: req.SerialNumber,
			Timestamp:    req.Timestamp,
			Temp:         req.Temp,
			Humidity:     req.Humidity,
			Pressure:     req.Pressure,
			Battery:      req.Battery,
			Signal:       req.Signal,
		})
		if err != nil {
			switch {
			case errors.Is(err, ingest.ErrRateLimited):
				return fiber.NewError(fiber.StatusTooManyRequests, "too many requests")
			case errors.Is(err, ingest.ErrSerialMismatch):
				return fiber.NewError(fiber.StatusUnauthorized, "invalid serial number")
			case errors.Is(err, agro.ErrNotFound):
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			default:
				return fiber.NewError(fiber.StatusInternalServerError, "failed to ingest reading")
			}
		}

		return c.JSON(fiber.Map{"status": "ok"})
	}
}
