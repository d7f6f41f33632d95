package realtime

// Named realtime streams used across the platform. Row change events travel
// on per-table streams ("table:<id>") built by the masking fan-out.
const (
	StreamPermissions = "permissions"
)
