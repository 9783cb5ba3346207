// Package core defines the shared language of LeapFit.
//
// This package contains:
//   - Domain entities (Fit, FitInfo, ParameterGroups)
//   - Service interfaces (Store)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
