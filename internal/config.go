package internal

import (
	"encoding/json"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/haatos/runkeeper/internal/util"
)

var Config *Configuration

type HoursDuration time.Duration

func NewHoursDuration(hours int64) HoursDuration {
	return HoursDuration(time.Duration(hours) * time.Hour)
}

func (hd HoursDuration) MarshalJSON() ([]byte, error) {
	hours := float64(time.Duration(hd)) / float64(time.Hour)
	return json.Marshal(hours)
}

func (hd *HoursDuration) UnmarshalJSON(data []byte) error {
	var hours float64
	if err := json.Unmarshal(data, &hours); err != nil {
		return err
	}
	*hd = HoursDuration(hours * float64(time.Hour))
	return nil
}

type SecondsDuration time.Duration

func NewSecondsDuration(seconds int64) SecondsDuration {
	return SecondsDuration(time.Duration(seconds) * time.Second)
}

func (sd SecondsDuration) MarshalJSON() ([]byte, error) {
	seconds := float64(time.Duration(sd)) / float64(time.Second)
	return json.Marshal(seconds)
}

func (sd *SecondsDuration) UnmarshalJSON(data []byte) error {
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return err
	}
	*sd = SecondsDuration(seconds * float64(time.Second))
	return nil
}

type Configuration struct {
	QueueSize              int64           `json:"queue_size"`
	RetentionIntervalHours HoursDuration   `json:"retention_interval_hours"`
	StoreTimeoutSeconds    SecondsDuration `json:"store_timeout_seconds"`
	ArchiveTimeoutSeconds  SecondsDuration `json:"archive_timeout_seconds"`
	DefaultStepTimeout     SecondsDuration `json:"default_step_timeout_seconds"`
}

func DefaultConfiguration() *Configuration {
	return &Configuration{
		QueueSize:              3,
		RetentionIntervalHours: NewHoursDuration(1),
		StoreTimeoutSeconds:    NewSecondsDuration(10),
		ArchiveTimeoutSeconds:  NewSecondsDuration(300),
		DefaultStepTimeout:     NewSecondsDuration(3600),
	}
}

// InitializeConfiguration reads path, writing the defaults there first when
// the file does not exist yet.
func InitializeConfiguration(path string) {
	Config = DefaultConfiguration()

	configFileExists, err := util.PathExists(path)
	if err != nil {
		log.Fatal(err)
	}
	if !configFileExists {
		if err := writeConfiguration(path, Config); err != nil {
			log.Fatal(err)
		}
		return
	}

	configBytes, err := os.ReadFile(path)
	if err != nil {
		log.Fatal(err)
	}
	if err := json.Unmarshal(configBytes, &Config); err != nil {
		log.Fatal(err)
	}
}

func UpdateConfiguration(path string, config *Configuration) error {
	if err := writeConfiguration(path, config); err != nil {
		return err
	}
	Config = config
	return nil
}

func writeConfiguration(path string, config *Configuration) error {
	b, err := json.MarshalIndent(config, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
