package vars

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/unkn0wn-root/wscls/internal/errdef"
)

type quoteMode int

const (
	quoteModeNone quoteMode = iota
	quoteModeSingle
	quoteModeDouble
)

// LoadDotEnv reads KEY=value pairs from a dotenv file so they can be
// bulk-imported into globals or a context.
func LoadDotEnv(path string) (values map[string]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeConfig, err, "open env file %s", path)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = errdef.Wrap(errdef.CodeConfig, closeErr, "close env file %s", path)
		}
	}()
	return ParseDotEnv(f)
}

// ParseDotEnv parses dotenv content. Later lines may reference earlier keys
// with ${KEY} or $KEY; single-quoted values stay literal.
func ParseDotEnv(r io.Reader) (map[string]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	values := make(map[string]string)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		trimmed := strings.TrimSpace(scanner.Text())
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") {
			continue
		}

		key, rawValue, err := parseAssignment(trimmed, lineNumber)
		if err != nil {
			return nil, err
		}
		value, mode, err := parseValue(rawValue, lineNumber)
		if err != nil {
			return nil, err
		}
		if mode != quoteModeSingle {
			value, err = expandValue(value, values, lineNumber)
			if err != nil {
				return nil, err
			}
		}
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, errdef.Wrap(errdef.CodeConfig, err, "read env file")
	}
	return values, nil
}

func parseAssignment(line string, lineNumber int) (string, string, error) {
	lower := strings.ToLower(line)
	if strings.HasPrefix(lower, "export ") || strings.HasPrefix(lower, "export\t") {
		line = strings.TrimSpace(line[len("export"):])
	}

	idx := strings.IndexRune(line, '=')
	if idx < 0 {
		return "", "", errdef.New(errdef.CodeConfig, "dotenv line %d: expected KEY=value", lineNumber)
	}
	key := strings.TrimSpace(line[:idx])
	if key == "" {
		return "", "", errdef.New(errdef.CodeConfig, "dotenv line %d: missing key", lineNumber)
	}
	return key, line[idx+1:], nil
}

func parseValue(raw string, lineNumber int) (string, quoteMode, error) {
	value := strings.TrimLeft(raw, " \t")
	if value == "" {
		return "", quoteModeNone, nil
	}
	switch value[0] {
	case '"':
		out, err := parseQuoted(value, quoteModeDouble, lineNumber)
		return out, quoteModeDouble, err
	case '\'':
		out, err := parseQuoted(value, quoteModeSingle, lineNumber)
		return out, quoteModeSingle, err
	default:
		return stripInlineComment(value), quoteModeNone, nil
	}
}

func parseQuoted(input string, mode quoteMode, lineNumber int) (string, error) {
	quote := byte('"')
	if mode == quoteModeSingle {
		quote = '\''
	}

	var b strings.Builder
	for i := 1; i < len(input); i++ {
		ch := input[i]
		if ch == '\\' {
			if i+1 >= len(input) {
				return "", errdef.New(errdef.CodeConfig, "dotenv line %d: unfinished escape", lineNumber)
			}
			i++
			if mode == quoteModeDouble {
				b.WriteByte(doubleQuoteEscape(input[i]))
			} else {
				b.WriteByte(input[i])
			}
			continue
		}
		if ch == quote {
			rest := strings.TrimSpace(input[i+1:])
			if rest != "" && rest[0] != '#' && rest[0] != ';' {
				return "", errdef.New(
					errdef.CodeConfig,
					"dotenv line %d: unexpected content after quoted value",
					lineNumber,
				)
			}
			return b.String(), nil
		}
		b.WriteByte(ch)
	}
	return "", errdef.New(errdef.CodeConfig, "dotenv line %d: unterminated quoted value", lineNumber)
}

func stripInlineComment(value string) string {
	inWhitespace := false
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case ' ', '\t':
			inWhitespace = true
		case '#', ';':
			if i == 0 || inWhitespace {
				return strings.TrimSpace(value[:i])
			}
			inWhitespace = false
		default:
			inWhitespace = false
		}
	}
	return strings.TrimSpace(value)
}

// single pass: a referenced value is never expanded a second time
func expandValue(value string, resolved map[string]string, lineNumber int) (string, error) {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch == '\\' && i+1 < len(value) && value[i+1] == '$' {
			b.WriteByte('$')
			i++
			continue
		}
		if ch != '$' || i+1 >= len(value) {
			b.WriteByte(ch)
			continue
		}
		if value[i+1] == '{' {
			end := strings.IndexByte(value[i+2:], '}')
			if end < 0 {
				return "", errdef.New(errdef.CodeConfig, "dotenv line %d: missing closing brace for ${", lineNumber)
			}
			end += i + 2
			name := strings.TrimSpace(value[i+2 : end])
			ref, err := lookupRef(name, resolved, lineNumber)
			if err != nil {
				return "", err
			}
			b.WriteString(ref)
			i = end
			continue
		}
		if isNameChar(value[i+1]) {
			j := i + 1
			for j < len(value) && isNameChar(value[j]) {
				j++
			}
			ref, err := lookupRef(value[i+1:j], resolved, lineNumber)
			if err != nil {
				return "", err
			}
			b.WriteString(ref)
			i = j - 1
			continue
		}
		b.WriteByte(ch)
	}
	return b.String(), nil
}

func lookupRef(name string, resolved map[string]string, lineNumber int) (string, error) {
	if name == "" {
		return "", errdef.New(errdef.CodeConfig, "dotenv line %d: empty variable name", lineNumber)
	}
	if value, ok := resolved[name]; ok {
		return value, nil
	}
	if value, ok := os.LookupEnv(name); ok {
		return value, nil
	}
	return "", errdef.New(errdef.CodeConfig, "dotenv line %d: variable %q is not defined", lineNumber, name)
}

func isNameChar(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

func doubleQuoteEscape(ch byte) byte {
	switch ch {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case '0':
		return 0
	default:
		return ch
	}
}
