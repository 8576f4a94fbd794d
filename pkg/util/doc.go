// Package util provides common utility functions and data structures
//
// This package includes generic set implementations, state transition helpers,
// and a path-keyed tree used throughout the workflow engine
package util
