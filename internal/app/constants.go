package app

const (
	Name           = "web888mon"
	ConfigFilename = "config.yaml"
	DBFilename     = "identity.db"
	LogFilename    = "web888mon.log"
)
