package connectors

const (
	TopicConnStatus     = "conn.status"
	TopicTelemetryView  = "telemetry.view"
	TopicDeviceIdentity = "device.identity"
)
