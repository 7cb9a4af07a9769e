package sim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver/handlers"
)

// ObservingConditions simulates a weather station fitted with a subset of
// the standard sensors. Readings only change through Set.
type ObservingConditions struct {
	base

	readings map[string]float64
	updated  map[string]time.Time
	now      func() time.Time
}

var defaultReadings = map[string]float64{
	handlers.SensorCloudCover:  5,
	handlers.SensorDewPoint:    2.5,
	handlers.SensorHumidity:    55,
	handlers.SensorPressure:    1013.25,
	handlers.SensorRainRate:    0,
	handlers.SensorTemperature: 8,
	handlers.SensorWindSpeed:   3.2,
}

// NewObservingConditions returns a station with temperature, humidity,
// dew point, pressure, cloud cover, rain rate and wind speed sensors.
func NewObservingConditions() *ObservingConditions {
	o := &ObservingConditions{
		readings: make(map[string]float64, len(defaultReadings)),
		updated:  make(map[string]time.Time, len(defaultReadings)),
		now:      time.Now,
	}
	now := o.now()
	for name, v := range defaultReadings {
		o.readings[name] = v
		o.updated[name] = now
	}
	return o
}

// Set stores a new reading, fitting the sensor if it was absent.
func (o *ObservingConditions) Set(name string, v float64) {
	name = strings.ToLower(name)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.readings[name] = v
	o.updated[name] = o.now()
}

func (o *ObservingConditions) Sensor(ctx context.Context, name string) (float64, error) {
	if err := o.check(); err != nil {
		return 0, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.readings[strings.ToLower(name)]
	if !ok {
		return 0, ascomserver.ErrHookNotImplemented
	}
	return v, nil
}

func (o *ObservingConditions) SensorDescription(name string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	name = strings.ToLower(name)
	if _, ok := o.readings[name]; !ok {
		return "", ascomserver.ErrHookNotImplemented
	}
	return fmt.Sprintf("Simulated %s sensor", name), nil
}

// Refresh stamps every sensor as freshly read.
func (o *ObservingConditions) Refresh(ctx context.Context) error {
	if err := o.check(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	for name := range o.updated {
		o.updated[name] = now
	}
	return nil
}

func (o *ObservingConditions) TimeSinceLastUpdate(ctx context.Context, name string) (float64, error) {
	if err := o.check(); err != nil {
		return 0, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	if name == "" {
		var latest time.Time
		for _, t := range o.updated {
			if t.After(latest) {
				latest = t
			}
		}
		return now.Sub(latest).Seconds(), nil
	}
	t, ok := o.updated[strings.ToLower(name)]
	if !ok {
		return 0, ascomserver.ErrHookNotImplemented
	}
	return now.Sub(t).Seconds(), nil
}
