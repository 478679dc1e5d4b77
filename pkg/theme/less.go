package theme

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
)

// Widget is the editor control suggested for a variable
type Widget string

const (
	WidgetColor   Widget = "color"
	WidgetDefault Widget = "default"
	WidgetFont    Widget = "font"
)

// DisabledFields are variables the admin screens never edit
var DisabledFields = []string{"import 'grid_constant.less'", "gridColumns"}

var (
	variableLine = regexp.MustCompile(`^@([^:]+):([^;]+)`)
	headerLine   = regexp.MustCompile(`//\s#(\S+)`)
	pixelValue   = regexp.MustCompile(`\d+px$`)
)

// Variable is one LESS variable declaration
type Variable struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Widget   Widget `json:"widget"`
	Editable bool   `json:"editable"`
}

// Group gathers the variables declared under a "// #header" comment.
// Variables found before any header land in a group with an empty header.
type Group struct {
	Header    string     `json:"header"`
	Variables []Variable `json:"variables"`
}

func newVariable(name, value string) Variable {
	v := Variable{Name: name, Value: value, Widget: WidgetFont}
	switch {
	case strings.HasPrefix(value, "#"):
		v.Widget = WidgetColor
	case pixelValue.MatchString(value):
		v.Widget = WidgetDefault
	}
	// references to other variables are computed, not edited
	v.Editable = !strings.Contains(value, "@") && !slices.Contains(DisabledFields, name)
	return v
}

func parseVariable(line string) (Variable, bool) {
	m := variableLine.FindStringSubmatch(line)
	if m == nil {
		return Variable{}, false
	}
	return newVariable(strings.TrimSpace(m[1]), strings.TrimSpace(m[2])), true
}

// ParseLess reads LESS source and groups its variables by header comment
func ParseLess(r io.Reader) ([]Group, error) {
	var groups []Group
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if m := headerLine.FindStringSubmatch(line); m != nil {
			groups = append(groups, Group{Header: m[1]})
		}

		v, ok := parseVariable(line)
		if !ok {
			continue
		}
		if len(groups) == 0 {
			groups = append(groups, Group{})
		}
		g := &groups[len(groups)-1]
		if i := slices.IndexFunc(g.Variables, func(e Variable) bool { return e.Name == v.Name }); i >= 0 {
			g.Variables[i] = v
		} else {
			g.Variables = append(g.Variables, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read less source: %w", err)
	}
	return groups, nil
}

func formatVariable(name, value string) string {
	return fmt.Sprintf("@%-30s%s;", name+":", value)
}

// RewriteLess copies LESS source from r to w, replacing the value of every
// variable named in values. Other lines are kept as they are.
func RewriteLess(r io.Reader, w io.Writer, values map[string]string) error {
	scanner := bufio.NewScanner(r)
	bw := bufio.NewWriter(w)
	for scanner.Scan() {
		line := scanner.Text()
		if v, ok := parseVariable(line); ok {
			if value, found := values[v.Name]; found {
				line = formatVariable(v.Name, value)
			}
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read less source: %w", err)
	}
	return bw.Flush()
}
