package state

// Slot names one raw-fragment region of a project descriptor.
type Slot int

const (
	SlotLet Slot = iota
	SlotPins
	SlotPackagesRaw
	SlotScripts
	SlotEnvRaw
	SlotOverride
	SlotOverrideMerge
	SlotOverrideShellHook
)

// Slots lists every fragment slot in descriptor order.
var Slots = []Slot{
	SlotLet,
	SlotPins,
	SlotPackagesRaw,
	SlotScripts,
	SlotEnvRaw,
	SlotOverride,
	SlotOverrideMerge,
	SlotOverrideShellHook,
}

var slotNames = map[Slot]string{
	SlotLet:               "let",
	SlotPins:              "pins",
	SlotPackagesRaw:       "packages_raw",
	SlotScripts:           "scripts",
	SlotEnvRaw:            "env_raw",
	SlotOverride:          "override",
	SlotOverrideMerge:     "override_merge",
	SlotOverrideShellHook: "override_shellhook",
}

func (s Slot) String() string {
	if name, ok := slotNames[s]; ok {
		return name
	}
	return "unknown"
}

// Fragments holds opaque descriptor text carried verbatim through marker
// regions the tool does not otherwise interpret.
type Fragments struct {
	Let               string `yaml:"let,omitempty"`
	Pins              string `yaml:"pins,omitempty"`
	PackagesRaw       string `yaml:"packages_raw,omitempty"`
	Scripts           string `yaml:"scripts,omitempty"`
	EnvRaw            string `yaml:"env_raw,omitempty"`
	Override          string `yaml:"override,omitempty"`
	OverrideMerge     string `yaml:"override_merge,omitempty"`
	OverrideShellHook string `yaml:"override_shellhook,omitempty"`
}

func (f *Fragments) field(slot Slot) *string {
	switch slot {
	case SlotLet:
		return &f.Let
	case SlotPins:
		return &f.Pins
	case SlotPackagesRaw:
		return &f.PackagesRaw
	case SlotScripts:
		return &f.Scripts
	case SlotEnvRaw:
		return &f.EnvRaw
	case SlotOverride:
		return &f.Override
	case SlotOverrideMerge:
		return &f.OverrideMerge
	case SlotOverrideShellHook:
		return &f.OverrideShellHook
	}
	return nil
}

// Get returns the fragment stored in slot.
func (f Fragments) Get(slot Slot) string {
	if ptr := f.field(slot); ptr != nil {
		return *ptr
	}
	return ""
}

// Set replaces the fragment stored in slot.
func (f *Fragments) Set(slot Slot, value string) {
	if ptr := f.field(slot); ptr != nil {
		*ptr = value
	}
}

// IsZero reports whether every slot is empty.
func (f Fragments) IsZero() bool {
	for _, slot := range Slots {
		if f.Get(slot) != "" {
			return false
		}
	}
	return true
}
