// Package template renders campaign message previews with the Liquid
// template language. The send path deliberately uses only the simple
// {{name}} substitution; Liquid is for authoring-time previews where richer
// filters and undefined-variable warnings help catch mistakes before a
// campaign goes out.
package template

import (
	"crypto/md5"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Service handles Liquid preview rendering with parse caching.
type Service struct {
	engine *liquid.Engine
	cache  sync.Map // md5(message) -> *liquid.Template
}

// Preview contains the rendered output and any authoring warnings.
type Preview struct {
	Output   string   `json:"output"`
	Warnings []string `json:"warnings,omitempty"`
	Success  bool     `json:"success"`
}

// NewService creates a preview service with the campaign filters registered.
func NewService() *Service {
	engine := liquid.NewEngine()

	// Default value filter: {{ name | default: "Friend" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Capitalize first letter: {{ name | capitalize }}
	engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	return &Service{engine: engine}
}

var varPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)`)

// Render previews a campaign message for one recipient name. Unknown
// variables are reported as warnings. A message that fails to parse is
// returned unrendered so the author sees what they typed.
func (s *Service) Render(message, name string) *Preview {
	if strings.TrimSpace(name) == "" {
		name = "there"
	}
	ctx := map[string]interface{}{
		"name": name,
	}

	p := &Preview{Success: true}
	for _, m := range varPattern.FindAllStringSubmatch(message, -1) {
		root := strings.SplitN(m[1], ".", 2)[0]
		if _, ok := ctx[root]; !ok {
			p.Warnings = append(p.Warnings, fmt.Sprintf("undefined variable %q", m[1]))
		}
	}
	if len(p.Warnings) > 0 {
		p.Success = false
	}

	tpl, err := s.parse(message)
	if err != nil {
		p.Output = message
		p.Success = false
		p.Warnings = append(p.Warnings, err.Error())
		return p
	}
	out, err := tpl.RenderString(ctx)
	if err != nil {
		p.Output = message
		p.Success = false
		p.Warnings = append(p.Warnings, err.Error())
		return p
	}
	p.Output = out
	return p
}

func (s *Service) parse(message string) (*liquid.Template, error) {
	key := fmt.Sprintf("%x", md5.Sum([]byte(message)))
	if cached, ok := s.cache.Load(key); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := s.engine.ParseString(message)
	if err != nil {
		return nil, err
	}
	s.cache.Store(key, tpl)
	return tpl, nil
}
