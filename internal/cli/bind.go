package cli

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

var bindRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// bindFilter substitutes ${name} references in a filter expression with
// values from a YAML file. Strings substitute verbatim, so geometry
// literals work unquoted and string comparisons write their own quotes:
//
//	INTERSECTS(geom, ${area}) AND name = '${who}'
//
// An empty path returns the filter unchanged.
func bindFilter(filter, path string) (string, error) {
	if path == "" {
		return filter, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrap(err, "cli: read bind file")
	}
	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return "", eris.Wrap(err, "cli: parse bind file")
	}
	return substituteBinds(filter, values)
}

func substituteBinds(filter string, values map[string]any) (string, error) {
	var missing, bad []string
	out := bindRef.ReplaceAllStringFunc(filter, func(ref string) string {
		name := ref[2 : len(ref)-1]
		v, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return ref
		}
		rendered, ok := renderBind(v)
		if !ok {
			bad = append(bad, name)
			return ref
		}
		return rendered
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("cli: bind file does not define %s", strings.Join(missing, ", "))
	}
	if len(bad) > 0 {
		return "", fmt.Errorf("cli: bind value for %s is not a scalar", strings.Join(bad, ", "))
	}
	return out, nil
}

func renderBind(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	case bool:
		if t {
			return "TRUE", true
		}
		return "FALSE", true
	default:
		return "", false
	}
}
