package platform

import "runtime"

type Platform string

const (
	Windows Platform = "windows"
	Linux   Platform = "linux"
	Mac     Platform = "darwin"
	Unknown Platform = "unknown"
)

// Current is resolved once from the host operating system.
var Current = FromGOOS(runtime.GOOS)

func FromGOOS(goos string) Platform {
	switch goos {
	case "windows":
		return Windows
	case "linux":
		return Linux
	case "darwin":
		return Mac
	default:
		return Unknown
	}
}

// Handlers holds one procedure per platform. Nil entries are unsupported.
type Handlers struct {
	Windows func() error
	Linux   func() error
	Mac     func() error
	Default func() error
}

// Dispatch invokes the handler matching the platform, then Default, otherwise does nothing.
func Dispatch(p Platform, handlers Handlers) error {
	var handler func() error
	switch p {
	case Windows:
		handler = handlers.Windows
	case Linux:
		handler = handlers.Linux
	case Mac:
		handler = handlers.Mac
	}
	if handler == nil {
		handler = handlers.Default
	}
	if handler == nil {
		return nil
	}
	return handler()
}

// Select returns the value for the platform, falling back to def.
func Select[T any](p Platform, windows, linux, mac, def T) T {
	var selected T
	_ = Dispatch(p, Handlers{
		Windows: func() error { selected = windows; return nil },
		Linux:   func() error { selected = linux; return nil },
		Mac:     func() error { selected = mac; return nil },
		Default: func() error { selected = def; return nil },
	})
	return selected
}

// Executable appends the platform's executable suffix to name.
func (p Platform) Executable(name string) string {
	if p == Windows {
		return name + ".exe"
	}
	return name
}
