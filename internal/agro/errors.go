package agro

import "errors"

// MaxPhasesPerHybrid caps the number of phase definitions a single hybrid
// may carry.
const MaxPhasesPerHybrid = 10

var (
	// ErrNotFound is returned when a referenced field, hybrid or logger
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPhaseCapacity is returned when creating a phase would exceed
	// MaxPhasesPerHybrid for the hybrid.
	ErrPhaseCapacity = errors.New("phase capacity exceeded")

	// ErrInvalidPhaseRange is returned for negative or inverted GDD ranges.
	ErrInvalidPhaseRange = errors.New("invalid phase range")

	// ErrNoSensorData is returned when a field/day has readings but none of
	// them carry a usable value for a required sensor, so no meaningful
	// aggregate can be computed.
	ErrNoSensorData = errors.New("no usable sensor data")

	// ErrBatchRunning is returned when a daily batch trigger fires while a
	// previous batch is still in flight.
	ErrBatchRunning = errors.New("daily aggregation batch already running")
)
