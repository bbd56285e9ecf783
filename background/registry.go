package background

var registry = map[string]Algorithm{}

func register(a Algorithm) { registry[a.Name()] = a }

// Lookup returns the registered Algorithm for name.
func Lookup(name string) (Algorithm, bool) {
	a, ok := registry[name]
	return a, ok
}

// Names returns every registered algorithm name.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

func init() {
	register(Schwarzfischer{})
	register(MorphOpen{})
}
