package main

import (
	"fmt"
	"strings"
)

// splitFlags moves flags ahead of positionals so the standard flag package
// accepts "logs export ./AB12C --out x.csv". Names in valueFlags consume the
// following argument unless written as --name=value.
func splitFlags(arguments []string, valueFlags map[string]bool) []string {
	var flags, positionals []string
	for index := 0; index < len(arguments); index++ {
		argument := arguments[index]
		switch {
		case argument == "--":
			positionals = append(positionals, arguments[index+1:]...)
			index = len(arguments)
		case len(argument) < 2 || !strings.HasPrefix(argument, "-"):
			positionals = append(positionals, argument)
		default:
			flags = append(flags, argument)
			name := strings.TrimLeft(argument, "-")
			if !strings.Contains(name, "=") && valueFlags[name] && index+1 < len(arguments) {
				index++
				flags = append(flags, arguments[index])
			}
		}
	}
	return append(flags, positionals...)
}

// singlePath returns the only positional argument.
func singlePath(positionals []string, what string) (string, error) {
	switch len(positionals) {
	case 0:
		return "", fmt.Errorf("missing required <%s>", what)
	case 1:
		if strings.TrimSpace(positionals[0]) == "" {
			return "", fmt.Errorf("missing required <%s>", what)
		}
		return positionals[0], nil
	default:
		return "", fmt.Errorf("expected one <%s>, got %d arguments", what, len(positionals))
	}
}
