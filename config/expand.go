package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hydai/mcplug"
)

// ExpandString substitutes environment variable references in s.
//
// Recognized syntaxes:
//
//	${NAME}           value of NAME; error when unset
//	${NAME:-FALLBACK} value of NAME when set and non-empty, else FALLBACK
//	$env:NAME         synonym for ${NAME}
//
// A lone '$' not followed by '{' or "env:" is a literal dollar sign. All
// occurrences expand in a single pass; the substituted values are not
// re-expanded. source names the config file for error messages.
func ExpandString(s, source string) (string, error) {
	var out strings.Builder
	out.Grow(len(s))

	i := 0
	for i < len(s) {
		ch := s[i]
		if ch != '$' {
			out.WriteByte(ch)
			i++
			continue
		}

		rest := s[i+1:]
		switch {
		case strings.HasPrefix(rest, "{"):
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				return "", mcplug.ErrConfig(source, fmt.Sprintf("unclosed variable reference: $%s", rest))
			}
			expr := rest[1:end]
			val, err := resolveExpr(expr, source)
			if err != nil {
				return "", err
			}
			out.WriteString(val)
			i += 1 + end + 1
		case strings.HasPrefix(rest, "env:"):
			name := leadingIdent(rest[len("env:"):])
			if name == "" {
				return "", mcplug.ErrConfig(source, "empty variable name in $env: reference")
			}
			val, ok := os.LookupEnv(name)
			if !ok {
				return "", mcplug.ErrConfig(source, fmt.Sprintf("environment variable '%s' is not set", name))
			}
			out.WriteString(val)
			i += 1 + len("env:") + len(name)
		default:
			out.WriteByte('$')
			i++
		}
	}

	return out.String(), nil
}

// resolveExpr handles the inside of a ${...} reference.
func resolveExpr(expr, source string) (string, error) {
	if sep := strings.Index(expr, ":-"); sep >= 0 {
		name := expr[:sep]
		fallback := expr[sep+2:]
		if val := os.Getenv(name); val != "" {
			return val, nil
		}
		return fallback, nil
	}
	val, ok := os.LookupEnv(expr)
	if !ok {
		return "", mcplug.ErrConfig(source, fmt.Sprintf("environment variable '%s' is not set", expr))
	}
	return val, nil
}

// leadingIdent returns the longest [A-Za-z0-9_] prefix of s.
func leadingIdent(s string) string {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' {
			continue
		}
		return s[:i]
	}
	return s
}

// expandServer env-expands every string-valued field of sc in place. source
// names the file that defined the server.
func expandServer(sc *mcplug.ServerConfig, source string) error {
	var err error
	if sc.BaseURL != "" {
		if sc.BaseURL, err = ExpandString(sc.BaseURL, source); err != nil {
			return err
		}
	}
	if sc.Command != "" {
		if sc.Command, err = ExpandString(sc.Command, source); err != nil {
			return err
		}
	}
	for i, arg := range sc.Args {
		if sc.Args[i], err = ExpandString(arg, source); err != nil {
			return err
		}
	}
	for k, v := range sc.Env {
		if sc.Env[k], err = ExpandString(v, source); err != nil {
			return err
		}
	}
	for k, v := range sc.Headers {
		if sc.Headers[k], err = ExpandString(v, source); err != nil {
			return err
		}
	}
	return nil
}
