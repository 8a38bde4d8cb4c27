package session

import "strings"

// ParseArguments splits a command line on spaces. Single and double quotes
// group words; a quote preceded by a backslash is kept literally together
// with the backslash.
func ParseArguments(command string) []string {
	var (
		args         []string
		current      strings.Builder
		singleQuoted bool
		doubleQuoted bool
		prev         rune
	)
	for i, c := range command {
		escaped := i > 0 && prev == '\\'
		prev = c
		switch {
		case c == ' ':
			if singleQuoted || doubleQuoted {
				current.WriteRune(c)
			} else if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case c == '\'' && !escaped:
			switch {
			case singleQuoted:
				singleQuoted = false
			case doubleQuoted:
				current.WriteRune(c)
			default:
				singleQuoted = true
			}
		case c == '"' && !escaped:
			switch {
			case doubleQuoted:
				doubleQuoted = false
			case singleQuoted:
				current.WriteRune(c)
			default:
				doubleQuoted = true
			}
		default:
			current.WriteRune(c)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}

func ArgumentsToString(args []string) string {
	if args == nil {
		return "null"
	}
	return strings.Join(args, " ")
}
