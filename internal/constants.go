package internal

const (
	DotEnvPath        = "./.env"
	ConfigurationPath = "runkeeper.json"
	MetricsPath       = "/metrics"
)
