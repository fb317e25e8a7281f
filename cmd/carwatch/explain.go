package main

import (
	"fmt"
	"slices"
	"strings"
)

func hasExplainFlag(arguments []string) bool {
	return slices.ContainsFunc(arguments, func(argument string) bool {
		return strings.TrimSpace(argument) == "--explain"
	})
}

func writeExplain(text string) int {
	fmt.Println(text)
	return exitOK
}
