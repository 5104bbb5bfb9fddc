// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package elm

import "strings"

// Phrases an adapter uses to report that a request produced nothing usable
var noDataPhrases = []string{
	"NO DATA",
	"UNABLE TO CONNECT",
	"ERROR",
	"STOPPED",
	"BUS INIT",
	"?",
}

// Substrings found in the identifier printed after ATZ / ATI
var identifierPhrases = []string{
	"ELM327",
	"OBDII",
	"STN",
	"VLINK",
}

// IsNoData reports whether the adapter explicitly answered with an empty or
// error condition
func IsNoData(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return true
	}
	return containsAny(raw, noDataPhrases)
}

// IsOK reports whether a setup command was acknowledged
func IsOK(raw string) bool {
	return containsAny(raw, []string{"OK"})
}

// IsAdapterIdentifier reports whether raw contains an adapter identifier
// string such as "ELM327 v1.5"
func IsAdapterIdentifier(raw string) bool {
	return containsAny(raw, identifierPhrases)
}

// AdapterIdentifier returns the first line of raw that looks like an
// adapter identifier, or "" if there is none
func AdapterIdentifier(raw string) string {
	for _, line := range strings.FieldsFunc(raw, func(r rune) bool { return r == '\r' || r == '\n' }) {
		if IsAdapterIdentifier(line) {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

func containsAny(raw string, phrases []string) bool {
	upper := strings.ToUpper(raw)
	for _, p := range phrases {
		if strings.Contains(upper, p) {
			return true
		}
	}
	return false
}
