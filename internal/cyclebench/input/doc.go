// Package input provides the shared source of cycle numbers that workers draw from.
package input
