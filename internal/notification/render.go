package notification

import (
	"strings"
)

// Render substitutes {name} placeholders in the subject and body from
// msg.Data. It runs once per delivery run, before any provider is invoked.
//
// An unresolved placeholder is a configuration error, not a silent no-op:
// sending "Hello {username}" to a customer is worse than not sending at all.
// Literal braces are written as {{ and }}.
func Render(msg Message) (Rendered, error) {
	subject, err := substitute(msg.Subject, msg.Data)
	if err != nil {
		return Rendered{}, err
	}
	body, err := substitute(msg.Body, msg.Data)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: subject, Body: body}, nil
}

func substitute(s string, data map[string]string) (string, error) {
	if !strings.ContainsAny(s, "{}") {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		switch c {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return "", Errorf(KindConfig, "template: unterminated placeholder at offset %d", i)
			}
			name := s[i+1 : i+1+end]
			if name == "" {
				return "", Errorf(KindConfig, "template: empty placeholder at offset %d", i)
			}
			val, ok := data[name]
			if !ok {
				return "", Errorf(KindConfig, "template: unresolved placeholder %q", name)
			}
			b.WriteString(val)
			i += end + 2
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return "", Errorf(KindConfig, "template: unmatched %q at offset %d", "}", i)
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}
