// Package config loads the relay's runtime configuration from the
// environment, per spec.md 6's external-interface list: backend connection
// parameters, pool sizing, and cache capacity. No third-party config
// library appears anywhere in the corpus this module is grounded on, so
// this package is a plain struct populated with os.Getenv and strconv, the
// same way the teacher's own command-line entry points read flags.
package config
