package session

import (
	"fmt"
	"strings"
)

// Strategy decides whether a delivered log line is also printed.
type Strategy int

const (
	AlwaysPrintLogs Strategy = iota
	PrintLogsWhenNoCallbacksDefined
	PrintLogsWhenGlobalCallbackNotDefined
	PrintLogsWhenSessionCallbackNotDefined
	NeverPrintLogs
)

// DefaultStrategy is the process wide strategy until changed.
const DefaultStrategy = PrintLogsWhenNoCallbacksDefined

var strategyNames = [...]string{
	AlwaysPrintLogs:                        "always_print_logs",
	PrintLogsWhenNoCallbacksDefined:        "print_logs_when_no_callbacks_defined",
	PrintLogsWhenGlobalCallbackNotDefined:  "print_logs_when_global_callback_not_defined",
	PrintLogsWhenSessionCallbackNotDefined: "print_logs_when_session_callback_not_defined",
	NeverPrintLogs:                         "never_print_logs",
}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return fmt.Sprintf("strategy(%d)", int(s))
	}
	return strategyNames[s]
}

func ParseStrategy(name string) (Strategy, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range strategyNames {
		if s == n {
			return Strategy(i), nil
		}
	}
	return DefaultStrategy, fmt.Errorf("unknown log redirection strategy %q", name)
}

// ShouldPrint evaluates the strategy against the callbacks that were invoked
// for a log line.
func (s Strategy) ShouldPrint(sessionCallback, globalCallback bool) bool {
	switch s {
	case NeverPrintLogs:
		return false
	case PrintLogsWhenGlobalCallbackNotDefined:
		return !globalCallback
	case PrintLogsWhenSessionCallbackNotDefined:
		return !sessionCallback
	case PrintLogsWhenNoCallbacksDefined:
		return !globalCallback && !sessionCallback
	default:
		return true
	}
}
