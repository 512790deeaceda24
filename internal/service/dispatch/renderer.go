package dispatch

import "strings"

// fallbackName is substituted when a recipient row carries no name.
const fallbackName = "there"

// Render replaces personalization tags in the campaign message with the
// recipient's name. A blank name falls back to a generic greeting so the
// message never reads "Hi ,".
func Render(message, name string) string {
	if message == "" {
		return message
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallbackName
	}
	replacements := map[string]string{
		"{{name}}":   name,
		"{{ name }}": name,
		"{{NAME}}":   name,
	}
	result := message
	for tag, value := range replacements {
		result = strings.ReplaceAll(result, tag, value)
	}
	return result
}
