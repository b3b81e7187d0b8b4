// Package panels binds the resource editor to the gateway's configuration
// kinds and assembles the read-only views built from diagnostics.
package panels
