package config

// StripComments removes // line comments and /* */ block comments from JSONC
// input. String literals are preserved verbatim, including escape sequences,
// so a "//" inside a string survives. Newlines inside comments are kept so
// parse errors report stable line numbers. Trailing commas are not handled
// here; the strict JSON parse after stripping rejects them.
func StripComments(input []byte) []byte {
	out := make([]byte, 0, len(input))
	i := 0
	n := len(input)

	for i < n {
		ch := input[i]

		if ch == '"' {
			// String literal: copy through to the closing quote.
			out = append(out, ch)
			i++
			for i < n {
				c := input[i]
				out = append(out, c)
				i++
				if c == '\\' && i < n {
					out = append(out, input[i])
					i++
					continue
				}
				if c == '"' {
					break
				}
			}
			continue
		}

		if ch == '/' && i+1 < n {
			switch input[i+1] {
			case '/':
				i += 2
				for i < n && input[i] != '\n' {
					i++
				}
				continue
			case '*':
				i += 2
				for i < n {
					if input[i] == '\n' {
						out = append(out, '\n')
					}
					if input[i] == '*' && i+1 < n && input[i+1] == '/' {
						i += 2
						break
					}
					i++
				}
				continue
			}
		}

		out = append(out, ch)
		i++
	}

	return out
}
