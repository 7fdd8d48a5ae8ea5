package model

const (
	AppName = "placer"

	LogLevelInfo  = "info"
	LogLevelDebug = "debug"
	LogLevelTrace = "trace"
)

// LogLevels returns the supported log levels
func LogLevels() []string { return []string{LogLevelInfo, LogLevelDebug, LogLevelTrace} }

// Attributes is the type specific attribute bag of a component specification.
//
// Values are kept as strings as the catalogs they are decoded from
// are not consistent in how they represent numbers and units.
type Attributes map[string]string

// Get returns the attribute value for the key, or an empty string.
func (a Attributes) Get(key string) string {
	if a == nil {
		return ""
	}

	return a[key]
}

// Copy returns a copy of the attribute bag.
func (a Attributes) Copy() Attributes {
	if a == nil {
		return nil
	}

	c := make(Attributes, len(a))
	for k, v := range a {
		c[k] = v
	}

	return c
}

// Attribute keys common to the catalogs.
const (
	// optical modules
	AttrTransceiverType = "transceiver_type"
	AttrSpeed           = "speed"
	AttrConnector       = "connector"
	AttrReach           = "reach"
	AttrWavelength      = "wavelength"

	// network adapters
	AttrPortCount  = "port_count"
	AttrInterface  = "interface"
	AttrFormFactor = "form_factor"

	// memory
	AttrMemoryType = "memory_type"
	AttrCapacity   = "capacity"

	// processors
	AttrSocket = "socket"
	AttrCores  = "cores"
)
