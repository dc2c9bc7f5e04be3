// Package scenarios replays scripted FMS and operator interactions against
// the scheduler on a fake clock.
package scenarios

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
)

// StepDef is one scripted interaction. Times are offsets in seconds from the
// scenario start.
type StepDef struct {
	Action  string `yaml:"action"`
	From    int64  `yaml:"from,omitempty"`
	To      int64  `yaml:"to,omitempty"`
	Seconds int64  `yaml:"seconds,omitempty"`
	// Consumption and Production are Wh per slot for schedule instructions.
	Consumption []int `yaml:"consumption,omitempty"`
	Production  []int `yaml:"production,omitempty"`
	SOC         int   `yaml:"soc,omitempty"`
	At          int64 `yaml:"at,omitempty"`
}

// Schedule builds the instruction schedule of a step starting at origin.
func (s StepDef) Schedule(origin, slotLength int64) model.Schedule {
	n := max(len(s.Consumption), len(s.Production))
	sched := model.NewSchedule(origin, origin+s.From, slotLength, n)
	copy(sched.Consumption, s.Consumption)
	copy(sched.Production, s.Production)
	return sched
}

type Expected struct {
	Published          int    `yaml:"published"`
	Attempts           int    `yaml:"attempts"`
	IncompleteInitial  bool   `yaml:"incomplete_initial"`
	IncompleteUpdate   bool   `yaml:"incomplete_update"`
	CommittedSchedules int    `yaml:"committed_schedules"`
	TargetSOC          *int   `yaml:"target_soc,omitempty"`
	LatestInitial      *int64 `yaml:"latest_initial,omitempty"`
}

type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Start is the RFC 3339 scenario start.
	Start       string             `yaml:"start"`
	FMSFailures int                `yaml:"fms_failures,omitempty"`
	Forecasts   map[string]float64 `yaml:"forecasts,omitempty"`
	Steps       []StepDef          `yaml:"steps"`
	Expected    Expected           `yaml:"expected"`
}

// Origin parses Start.
func (sc *Scenario) Origin() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, sc.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("scenario %s start: %w", sc.Name, err)
	}
	return t, nil
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if _, err := sc.Origin(); err != nil {
		return nil, err
	}
	return &sc, nil
}
