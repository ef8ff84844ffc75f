// Package validation bounds client-supplied identifiers, strings and
// attribute maps before they reach the span store.
package validation
