package module

// Kind describes the capability of a module type
type Kind string

const (
	// KindInput marks event-producing module types
	KindInput Kind = "input"
	// KindOutput marks event-consuming module types
	KindOutput Kind = "output"
)

// Valid reports whether the kind is one of the known capabilities
func (k Kind) Valid() bool {
	return k == KindInput || k == KindOutput
}

// FieldType tags a config field for UI rendering
type FieldType string

// Field type tags understood by the configuration UI
const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldSlider   FieldType = "slider"
	FieldTime     FieldType = "time"
	FieldFilepath FieldType = "filepath"
	FieldToggle   FieldType = "toggle"
	FieldSelect   FieldType = "select"
)

// Field describes a single configurable parameter of a module type
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
	Default     any       `json:"default,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"` // For number/slider types
	Maximum     *float64  `json:"maximum,omitempty"` // For number/slider types
	Options     []string  `json:"options,omitempty"` // For select type
}

// Manifest is the static, type-level description of a module kind.
// It is loaded once from the registry per module type and shared by
// every instance of that type; instances hold a reference, not a copy
// they may mutate.
type Manifest struct {
	Name        string  `json:"name"` // Display name, also the routing cross-reference key
	Kind        Kind    `json:"type"`
	Description string  `json:"description,omitempty"`
	Version     string  `json:"version,omitempty"`
	Fields      []Field `json:"fields"`
}

// Valid reports whether the manifest carries the minimum required metadata
func (m Manifest) Valid() bool {
	return m.Name != "" && m.Kind.Valid()
}
